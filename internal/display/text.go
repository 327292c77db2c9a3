package display

import (
	"fmt"
	"strings"
)

// Ellipsis marks a truncated input echo.
const Ellipsis = "..."

// Truncate shortens code to its first limit runes followed by Ellipsis when
// it is longer than limit. A limit of zero or less disables truncation.
func Truncate(code string, limit int) string {
	if limit <= 0 {
		return code
	}
	n := 0
	for i := range code {
		if n == limit {
			return code[:i] + Ellipsis
		}
		n++
	}
	return code
}

// TextResult renders text/plain execution results as an input/output block:
//
//	input:
//	<code>
//	output:
//	<result>
//	---
//
// The echoed code is truncated to MaxInput() runes.
type TextResult struct {
	Sink     Sink
	MaxInput func() int
}

// HandleResult implements the kernel.ResultHandler interface.
func (h *TextResult) HandleResult(code string, data any) error {
	result, err := asText(data)
	if err != nil {
		return err
	}
	limit := 0
	if h.MaxInput != nil {
		limit = h.MaxInput()
	}

	var b strings.Builder
	for _, line := range []string{"input:", Truncate(code, limit), "output:", result, "---", "\n"} {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return h.Sink.WriteText(b.String())
}

// TextDisplay writes text/plain display payloads as they are.
type TextDisplay struct {
	Sink Sink
}

// HandleDisplay implements the kernel.DisplayHandler interface.
func (h *TextDisplay) HandleDisplay(data any) error {
	text, err := asText(data)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return h.Sink.WriteText(text)
}

// asText returns a textual payload value. Kernels send either a string or
// a list of lines.
func asText(data any) (string, error) {
	switch v := data.(type) {
	case string:
		return v, nil
	case []any:
		var b strings.Builder
		for i, line := range v {
			s, ok := line.(string)
			if !ok {
				return "", fmt.Errorf("line %d of payload is %T, not a string", i, line)
			}
			b.WriteString(s)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("payload is %T, not text", data)
	}
}
