package kernel

import (
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// frameSchema describes the parts of a frame this package relies on.
const frameSchema = `{
  "type": "object",
  "required": ["header"],
  "properties": {
    "header": {
      "type": "object",
      "required": ["msg_type"],
      "properties": {
        "msg_type": {"type": "string"},
        "msg_id": {"type": "string"}
      }
    },
    "parent_header": {"type": "object"},
    "content": {"type": "object"},
    "metadata": {"type": "object"}
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(frameSchema))
	})
	return schema, schemaErr
}

// validateFrame reports a MalformedEnvelope violation if data is not JSON or
// does not match frameSchema.
func validateFrame(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return violation(MalformedEnvelope, "schema: %v", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return violation(MalformedEnvelope, "decode: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return violation(MalformedEnvelope, "%s", strings.Join(msgs, "; "))
	}
	return nil
}
