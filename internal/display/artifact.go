package display

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/inercia/hermes/internal/fileutil"
)

// writeArtifact stores data as a new file in dir named after pattern and
// notifies sink.
func writeArtifact(sink Sink, logger *slog.Logger, dir, pattern string, data []byte) error {
	path, err := fileutil.WriteUnique(dir, pattern, data)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Debug("artifact written", "path", path, "bytes", len(data))
	}
	return sink.NotifyArtifact(path)
}

// ImageDisplay saves base64-encoded raster images (image/png, image/jpeg)
// as figure files.
type ImageDisplay struct {
	Sink   Sink
	Dir    string
	Ext    string // file extension including the dot, e.g. ".png"
	Logger *slog.Logger
}

// HandleDisplay implements the kernel.DisplayHandler interface.
func (h *ImageDisplay) HandleDisplay(data any) error {
	encoded, err := asText(data)
	if err != nil {
		return err
	}
	// Kernels may wrap the encoding over several lines.
	decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(encoded), ""))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return writeArtifact(h.Sink, h.Logger, h.Dir, "figure-*"+h.Ext, decoded)
}

// SVGDisplay saves image/svg+xml payloads verbatim.
type SVGDisplay struct {
	Sink   Sink
	Dir    string
	Logger *slog.Logger
}

// HandleDisplay implements the kernel.DisplayHandler interface.
func (h *SVGDisplay) HandleDisplay(data any) error {
	svg, err := asText(data)
	if err != nil {
		return err
	}
	return writeArtifact(h.Sink, h.Logger, h.Dir, "figure-*.svg", []byte(svg))
}

// HTMLDisplay sanitizes text/html payloads and saves them as HTML pages.
type HTMLDisplay struct {
	Sink   Sink
	Dir    string
	Policy *bluemonday.Policy // defaults to bluemonday.UGCPolicy
	Logger *slog.Logger
}

// HandleDisplay implements the kernel.DisplayHandler interface.
func (h *HTMLDisplay) HandleDisplay(data any) error {
	html, err := asText(data)
	if err != nil {
		return err
	}
	policy := h.Policy
	if policy == nil {
		policy = bluemonday.UGCPolicy()
	}
	return writeArtifact(h.Sink, h.Logger, h.Dir, "output-*.html", page(policy.Sanitize(html)))
}

// MarkdownDisplay renders text/markdown payloads to sanitized HTML pages.
type MarkdownDisplay struct {
	Sink      Sink
	Dir       string
	Converter *Converter // defaults to DefaultConverter
	Logger    *slog.Logger
}

// HandleDisplay implements the kernel.DisplayHandler interface.
func (h *MarkdownDisplay) HandleDisplay(data any) error {
	md, err := asText(data)
	if err != nil {
		return err
	}
	conv := h.Converter
	if conv == nil {
		conv = DefaultConverter()
	}
	body, err := conv.Convert(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	return writeArtifact(h.Sink, h.Logger, h.Dir, "output-*.html", page(body))
}

func page(body string) []byte {
	return []byte("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>hermes output</title></head>\n<body>\n" +
		body + "\n</body>\n</html>\n")
}
