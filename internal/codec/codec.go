// Package codec decodes raw stream payloads into generic records.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

var (
	ErrEmptyPayload     = errors.New("empty message payload")
	ErrMalformedPayload = errors.New("malformed message payload")
)

var defaultConfig = sonic.ConfigStd

// Record is a decoded message: a JSON object with no schema applied.
type Record map[string]any

// Parse decodes raw into a Record. It does not validate fields.
func Parse(raw []byte) (Record, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyPayload
	}

	var v any
	if err := defaultConfig.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected JSON object, got %s", ErrMalformedPayload, kindOf(v))
	}
	return Record(obj), nil
}

// String returns the string value stored under key. A missing key, a JSON
// null and a non-string value all report ok=false.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether key is present with a non-null value.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// ObjectType returns the trimmed `object_type` tag, or "" when absent.
func (r Record) ObjectType() string {
	s, _ := r.String("object_type")
	return string(bytes.TrimSpace([]byte(s)))
}

// Canonical returns a deterministic encoding of r with map keys sorted.
func (r Record) Canonical() ([]byte, error) {
	return Marshal(map[string]any(r))
}

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
