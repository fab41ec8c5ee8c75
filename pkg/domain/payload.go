package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FileDescriptor describes a client-side file attached to an upload action.
// Content travels separately; the descriptor is what validation inspects.
type FileDescriptor struct {
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type,omitempty"`
}

// Payload is the loosely-typed action body sent by the console client.
// Typed accessors centralize the coercion rules so handlers and the
// lifecycle manager never probe raw maps.
type Payload map[string]any

// String returns the named field as a string ("" when absent or non-string).
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Int returns the named field as an int (0 when absent or unparseable).
func (p Payload) Int(key string) int {
	switch t := p[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Strings returns the named field as a string slice.
func (p Payload) Strings(key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Files decodes the "files" field into descriptors. Both descriptor objects
// and bare filename strings are accepted.
func (p Payload) Files() []FileDescriptor {
	raw, ok := p["files"].([]any)
	if !ok {
		return nil
	}
	out := make([]FileDescriptor, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, FileDescriptor{Name: t})
		case map[string]any:
			data, err := json.Marshal(t)
			if err != nil {
				continue
			}
			var fd FileDescriptor
			if err := json.Unmarshal(data, &fd); err != nil {
				continue
			}
			out = append(out, fd)
		}
	}
	return out
}
