package display

import (
	"log/slog"

	"github.com/inercia/hermes/internal/appdir"
	"github.com/inercia/hermes/internal/kernel"
	"github.com/inercia/hermes/internal/logging"
)

// Options configure the handlers returned by Handlers.
type Options struct {
	// MaxInputLength bounds the echoed input of text results. Nil or a
	// result of zero or less disables truncation.
	MaxInputLength func() int

	// ArtifactsDir receives figures and HTML pages. Default is the
	// artifacts directory under the hermes data directory.
	ArtifactsDir string

	// CodeStyle is the highlighting style for Markdown code blocks.
	CodeStyle string

	Logger *slog.Logger
}

// Handlers returns the connection options registering the display and
// result handlers of this package, all writing to sink.
func Handlers(sink Sink, opts Options) ([]kernel.Option, error) {
	dir := opts.ArtifactsDir
	if dir == "" {
		d, err := appdir.ArtifactsDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Display()
	}
	style := opts.CodeStyle
	if style == "" {
		style = DefaultCodeStyle
	}

	return []kernel.Option{
		kernel.WithResultHandler("text/plain", &TextResult{Sink: sink, MaxInput: opts.MaxInputLength}),
		kernel.WithDisplayHandler("text/plain", &TextDisplay{Sink: sink}),
		kernel.WithDisplayHandler("image/png", &ImageDisplay{Sink: sink, Dir: dir, Ext: ".png", Logger: logger}),
		kernel.WithDisplayHandler("image/jpeg", &ImageDisplay{Sink: sink, Dir: dir, Ext: ".jpg", Logger: logger}),
		kernel.WithDisplayHandler("image/svg+xml", &SVGDisplay{Sink: sink, Dir: dir, Logger: logger}),
		kernel.WithDisplayHandler("text/html", &HTMLDisplay{Sink: sink, Dir: dir, Policy: Sanitizer(), Logger: logger}),
		kernel.WithDisplayHandler("text/markdown", &MarkdownDisplay{
			Sink:      sink,
			Dir:       dir,
			Converter: NewConverter(WithHighlighting(style), WithSanitization(Sanitizer())),
			Logger:    logger,
		}),
	}, nil
}
