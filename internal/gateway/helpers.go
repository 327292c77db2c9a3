package gateway

import (
	"fmt"
)

// Language returns the language of the kernel spec name, e.g. "python" for
// "python3".
func (c *Client) Language(name string) (string, error) {
	specs, err := c.ListKernelSpecs()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = specs.Default
	}
	spec, ok := specs.KernelSpecs[name]
	if !ok {
		return "", fmt.Errorf("unknown kernel spec %q", name)
	}
	return spec.Spec.Language, nil
}

// Resolve returns the kernel to attach to. With a non-empty id it must
// exist. Otherwise the first running kernel named name is used, and if
// there is none a new one is started; started reports that case.
func (c *Client) Resolve(id, name string) (k *Kernel, started bool, err error) {
	if id != "" {
		k, err := c.GetKernel(id)
		return k, false, err
	}

	kernels, err := c.ListKernels()
	if err != nil {
		return nil, false, err
	}
	for i := range kernels {
		if name == "" || kernels[i].Name == name {
			c.logger.Debug("reusing running kernel", "kernel_id", kernels[i].ID, "name", kernels[i].Name)
			return &kernels[i], false, nil
		}
	}

	k, err = c.StartKernel(name)
	if err != nil {
		return nil, false, err
	}
	return k, true, nil
}
