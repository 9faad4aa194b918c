package jsonx

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Object validates that raw holds a single JSON object and returns it compacted.
// Whitespace-only input is treated as the empty object.
//
// Parameters:
//   - raw: The accumulated text of a tool call's arguments.
//
// Returns:
//   - json.RawMessage: The compacted object.
//   - error: An error when raw is not valid JSON or is not an object.
func Object(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return json.RawMessage(`{}`), nil
	}
	res := gjson.Parse(raw)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid json: %q", raw)
	}
	if !res.IsObject() {
		return nil, fmt.Errorf("expected a json object, got %s", res.Type)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OrEmptyObject returns raw, substituting the empty object when raw is empty.
func OrEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}

// Equal reports whether two JSON documents are semantically equal,
// ignoring key order and insignificant whitespace.
//
// Parameters:
//   - a, b: The documents to compare. Empty input counts as the empty object.
//
// Returns:
//   - bool: false when either document fails to parse.
func Equal(a, b []byte) bool {
	var va, vb any
	if err := json.Unmarshal(OrEmptyObject(a), &va); err != nil {
		return false
	}
	if err := json.Unmarshal(OrEmptyObject(b), &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
