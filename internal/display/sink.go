// Package display renders kernel output. It provides the payload handlers
// registered on a kernel connection and the Sink they write to.
//
// Text is written to the sink directly. Images, HTML and Markdown are
// written as artifact files under an artifacts directory and the sink is
// told where they are.
package display

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// A Sink receives rendered output.
type Sink interface {
	// WriteText appends text to the output.
	WriteText(text string) error

	// NotifyArtifact reports a file written on behalf of the output.
	NotifyArtifact(path string) error
}

// ConsoleSink writes output to an io.Writer. It is safe for concurrent use.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink returns a sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// WriteText implements the Sink interface.
func (s *ConsoleSink) WriteText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, text)
	return err
}

// NotifyArtifact implements the Sink interface.
func (s *ConsoleSink) NotifyArtifact(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "Saved the %s to '%s'.\n", artifactKind(path), path)
	return err
}

func artifactKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".svg":
		return "figure"
	default:
		return "output"
	}
}
