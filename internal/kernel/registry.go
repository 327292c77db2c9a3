package kernel

import (
	"fmt"
	"maps"
	"slices"
)

// A DisplayHandler consumes one display_data payload value.
type DisplayHandler interface {
	HandleDisplay(data any) error
}

// DisplayHandlerFunc adapts a function to the DisplayHandler interface.
type DisplayHandlerFunc func(data any) error

// HandleDisplay implements the DisplayHandler interface.
func (f DisplayHandlerFunc) HandleDisplay(data any) error { return f(data) }

// A ResultHandler consumes one execute_result payload value together with
// the code that produced it.
type ResultHandler interface {
	HandleResult(code string, data any) error
}

// ResultHandlerFunc adapts a function to the ResultHandler interface.
type ResultHandlerFunc func(code string, data any) error

// HandleResult implements the ResultHandler interface.
func (f ResultHandlerFunc) HandleResult(code string, data any) error { return f(code, data) }

// Registry maps MIME types to handlers. It is immutable once built and safe
// for concurrent reads.
type Registry[H any] struct {
	handlers map[string]H
}

// NewRegistry returns a registry holding a copy of entries.
func NewRegistry[H any](entries map[string]H) *Registry[H] {
	return &Registry[H]{handlers: maps.Clone(entries)}
}

// Lookup returns the handler for mime. Unknown types report false.
func (r *Registry[H]) Lookup(mime string) (H, bool) {
	var zero H
	if r == nil {
		return zero, false
	}
	h, ok := r.handlers[mime]
	return h, ok
}

// MIMETypes returns the registered MIME types in lexical order.
func (r *Registry[H]) MIMETypes() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.handlers))
}

// Len returns the number of registered handlers.
func (r *Registry[H]) Len() int {
	if r == nil {
		return 0
	}
	return len(r.handlers)
}

// guard runs fn, converting a returned error or a panic into a HandlerFault.
func guard(mime string, fn func() error) (err error) {
	defer func() {
		if x := recover(); x != nil {
			err = &HandlerFault{MIME: mime, Err: fmt.Errorf("panic: %v", x)}
		}
	}()
	if e := fn(); e != nil {
		return &HandlerFault{MIME: mime, Err: e}
	}
	return nil
}
