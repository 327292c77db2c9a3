// Package gateway provides a client for the kernel REST API of a Jupyter
// server. It starts, lists and stops kernels and tells the kernel package
// where their channels live.
//
// # Basic Usage
//
// List the running kernels:
//
//	c := gateway.New("http://localhost:8888", gateway.WithToken(token))
//	kernels, err := c.ListKernels()
//
// Start a kernel and attach to it:
//
//	k, err := c.StartKernel("python3")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	lang, _ := c.Language(k.Name)
//	conn, err := kernel.Connect(k.ID, lang, c.BaseWSURL(), kernel.WithToken(token))
//
// # Resolving a Kernel
//
// Resolve picks a kernel the way the command line does: an explicit ID, else
// the first running kernel with the wanted name, else a new one.
//
//	k, started, err := c.Resolve("", "python3")
//
// The Client is safe for concurrent use.
package gateway
