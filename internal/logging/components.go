package logging

import "log/slog"

// Component names accepted by Config.Components.
const (
	ComponentKernel  = "kernel"
	ComponentGateway = "gateway"
	ComponentDisplay = "display"
	ComponentConfig  = "config"
	ComponentCLI     = "cli"
)

// WithComponent returns a logger tagged with component. Its records are
// dropped while component filtering excludes it.
func WithComponent(component string) *slog.Logger {
	base := Get().Handler().WithAttrs([]slog.Attr{slog.String("component", component)})
	return slog.New(componentHandler{base, component})
}

// Kernel returns the logger for kernel connections.
func Kernel() *slog.Logger { return WithComponent(ComponentKernel) }

// Gateway returns the logger for Jupyter server REST calls.
func Gateway() *slog.Logger { return WithComponent(ComponentGateway) }

// Display returns the logger for payload handlers.
func Display() *slog.Logger { return WithComponent(ComponentDisplay) }

// Settings returns the logger for configuration loading and reloads.
func Settings() *slog.Logger { return WithComponent(ComponentConfig) }

// CLI returns the logger for command-line events.
func CLI() *slog.Logger { return WithComponent(ComponentCLI) }

// WithKernel adds kernel_id and language to every record of base.
// A nil base yields nil.
func WithKernel(base *slog.Logger, kernelID, language string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("kernel_id", kernelID, "language", language)
}
