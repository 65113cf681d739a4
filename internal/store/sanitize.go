package store

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// cleanText makes s storable in a TEXT column: NUL bytes are removed and invalid UTF-8
// is replaced.
func cleanText(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}

// cleanJSON makes data storable in a JSONB column, which rejects \u0000 and invalid
// UTF-8. Documents that need it are decoded, scrubbed and re-encoded. ok is false when
// data is not valid JSON.
func cleanJSON(data []byte) ([]byte, bool) {
	if utf8.Valid(data) && !bytes.Contains(data, []byte(`\u0000`)) && bytes.IndexByte(data, 0) < 0 {
		return data, json.Valid(data)
	}
	var v any
	if err := json.Unmarshal(bytes.ReplaceAll(data, []byte{0}, nil), &v); err != nil {
		return nil, false
	}
	out, err := json.Marshal(scrub(v))
	if err != nil {
		return nil, false
	}
	return out, true
}

func scrub(v any) any {
	switch t := v.(type) {
	case string:
		return cleanText(t)
	case []any:
		for i := range t {
			t[i] = scrub(t[i])
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[cleanText(k)] = scrub(val)
		}
		return out
	}
	return v
}
