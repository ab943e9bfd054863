package nvx

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Document is a decoded JSON value: map[string]any, []any, string,
// json.Number, bool or nil.
type Document = any

// UnsupportedMarker appears in the body of groups the firmware does not implement.
const UnsupportedMarker = "unsupportedrestapi"

// Decode reads a JSON document keeping numbers as json.Number.
func Decode(r io.Reader) (Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return doc, nil
}

// Lookup walks doc along path. Map keys are matched exactly; a segment that
// parses as an integer indexes into an array.
func Lookup(doc Document, path ...string) (Document, bool) {
	cur := doc
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// IsUnsupported reports whether doc is the firmware's "not implemented" reply.
func IsUnsupported(doc Document) bool {
	s, ok := doc.(string)
	return ok && strings.Contains(strings.ToLower(s), UnsupportedMarker)
}

// Text renders a scalar the way the device UI does. Objects and arrays have
// no text form.
func Text(v Document) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "True", true
		}
		return "False", true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	default:
		return "", false
	}
}
