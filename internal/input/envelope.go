package input

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexInt64 handles JSON fields that can be either string or number.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	// Try as number first
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	// Try as string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*f = 0
			return nil // Silently ignore unparseable IDs
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

var rawPaths = []string{
	"isoMessage",
	"iso_message",
	"raw",
	"message",
	"message.isoMessage",
	"message.raw",
	"message.text",
	"payload.isoMessage",
	"payload.raw",
}

var sourcePaths = []string{
	"source",
	"source.name",
	"message.source",
	"station.ident",
}

var idPaths = []string{
	"id",
	"message.id",
	"payload.id",
}

// DecodeEnvelope extracts a message from a JSON object. It accepts the flat
// {"isoMessage": "..."} request shape and common wrappers that nest the raw
// text one level down.
func DecodeEnvelope(b []byte) (Message, bool) {
	// 1) Flat request shape.
	var flat Message
	if err := json.Unmarshal(b, &flat); err == nil && strings.TrimSpace(flat.Raw) != "" {
		flat.Raw = Sanitize(flat.Raw)
		return flat, true
	}

	// 2) Nested formats.
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return Message{}, false
	}
	raw := firstString(root, rawPaths...)
	if strings.TrimSpace(raw) == "" {
		return Message{}, false
	}
	return Message{
		Raw:    Sanitize(raw),
		Source: firstString(root, sourcePaths...),
		ID:     FlexInt64(firstInt64(root, idPaths...)),
	}, true
}

func firstString(root map[string]any, paths ...string) string {
	for _, p := range paths {
		if v, ok := deepGet(root, p); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

func firstInt64(root map[string]any, paths ...string) int64 {
	for _, p := range paths {
		if v, ok := deepGet(root, p); ok {
			switch t := v.(type) {
			case float64:
				return int64(t)
			case string:
				if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
					return i
				}
			}
		}
	}
	return 0
}

// deepGet walks a map[string]any using a dotted path: "a.b.c".
func deepGet(root map[string]any, dotted string) (any, bool) {
	var cur any = root
	for _, part := range strings.Split(dotted, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := node[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
