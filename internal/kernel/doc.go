// Package kernel implements a client for the Jupyter kernel messaging
// protocol (version 5.0) over the kernel "channels" WebSocket.
//
// A Connection is attached to one running kernel. It builds request
// envelopes, exchanges them with the kernel and routes the MIME-keyed
// payloads of the reply stream to registered handlers.
//
// # Basic Usage
//
// Attach to a kernel and run some code:
//
//	conn, err := kernel.Connect("8d1f...", "python3", "ws://localhost:8888",
//	    kernel.WithResultHandler("text/plain", kernel.ResultHandlerFunc(
//	        func(code string, data any) error {
//	            fmt.Println(data)
//	            return nil
//	        })),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	conn.Execute("1 + 1", func(err error) {
//	    if err != nil {
//	        log.Printf("execute: %v", err)
//	    }
//	})
//
// # Asynchronous and Synchronous Requests
//
// Execute requests go through a per-connection Dispatcher: a single worker
// goroutine that takes tasks from a FIFO queue and runs one exchange at a
// time, so callbacks fire in submission order. The queue is unbounded; its
// depth is reported by the "tasks_queued" metric.
//
// Complete and Request run the exchange on the caller's goroutine and do
// not wait for the queue to drain:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	matches, err := conn.Complete(ctx, "impo", 4)
//
// # Channels
//
// By default every exchange dials a fresh channel and closes it when the
// terminal "_reply" frame arrives (PerCall). The Persistent mode keeps one
// channel open for the lifetime of the connection and serializes exchanges
// on it.
//
// # Errors
//
// Transport failures are reported as *TransportError, protocol failures as
// *ProtocolViolation. Asynchronous failures are delivered to the callback of
// the task that caused them; they never stop the worker.
package kernel
