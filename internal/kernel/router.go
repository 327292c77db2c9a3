package kernel

import "slices"

// SelectByType returns the content blocks of the envelopes in s whose
// message type is msgType, in arrival order.
func SelectByType(s Stream, msgType string) []map[string]any {
	var out []map[string]any
	for _, env := range s {
		if env.Type() == msgType {
			out = append(out, env.Content)
		}
	}
	return out
}

// PayloadOf returns the MIME-keyed "data" field of a content block. A block
// without data yields an empty map.
func PayloadOf(content map[string]any) map[string]any {
	if data, ok := content["data"].(map[string]any); ok {
		return data
	}
	return map[string]any{}
}

// MIMEKeys returns the keys of payload in the order handlers are invoked
// (lexical).
func MIMEKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
