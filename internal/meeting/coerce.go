package meeting

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// envelopeKeys are checked in order on object payloads.
var envelopeKeys = []string{"data", "items", "meetings"}

// Coerce extracts the array of raw records carried by payload. A bare array is returned
// element by element; an object is unwrapped from its first array-valued envelope key.
// Anything else, including invalid JSON, yields an empty slice. It never fails.
func Coerce(payload []byte) []json.RawMessage {
	if len(bytes.TrimSpace(payload)) == 0 || !gjson.ValidBytes(payload) {
		return []json.RawMessage{}
	}
	return coerceResult(gjson.ParseBytes(payload))
}

func coerceResult(doc gjson.Result) []json.RawMessage {
	if doc.IsArray() {
		return elements(doc)
	}
	if doc.IsObject() {
		for _, key := range envelopeKeys {
			if v := doc.Get(key); v.IsArray() {
				return elements(v)
			}
		}
	}
	return []json.RawMessage{}
}

func elements(arr gjson.Result) []json.RawMessage {
	out := []json.RawMessage{}
	arr.ForEach(func(_, v gjson.Result) bool {
		out = append(out, json.RawMessage(v.Raw))
		return true
	})
	return out
}
