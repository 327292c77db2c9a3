package display

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// DefaultCodeStyle is the chroma style used for fenced code blocks.
const DefaultCodeStyle = "monokai"

// Converter renders Markdown to HTML.
type Converter struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithHighlighting enables syntax highlighting with the given chroma style.
func WithHighlighting(style string) ConverterOption {
	return func(c *Converter) {
		c.md = newMarkdown(highlighting.NewHighlighting(highlighting.WithStyle(style)))
	}
}

// WithSanitization sanitizes rendered HTML with policy.
func WithSanitization(policy *bluemonday.Policy) ConverterOption {
	return func(c *Converter) {
		c.sanitizer = policy
	}
}

// NewConverter returns a GFM converter configured by opts.
func NewConverter(opts ...ConverterOption) *Converter {
	c := &Converter{md: newMarkdown()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newMarkdown(exts ...goldmark.Extender) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(append([]goldmark.Extender{extension.GFM}, exts...)...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
}

// DefaultConverter returns a converter with highlighting and sanitization.
func DefaultConverter() *Converter {
	return NewConverter(
		WithHighlighting(DefaultCodeStyle),
		WithSanitization(Sanitizer()),
	)
}

// Sanitizer returns the bluemonday policy applied to rendered output: UGC
// plus the classes and ids emitted by highlighting and heading anchors.
func Sanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span", "div")
	p.AllowAttrs("id").Matching(bluemonday.Paragraph).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return p
}

// Convert renders markdown to HTML.
func (c *Converter) Convert(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	out := buf.String()
	if c.sanitizer != nil {
		out = c.sanitizer.Sanitize(out)
	}
	return out, nil
}
