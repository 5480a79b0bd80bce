package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Lookup walks data along a dot separated path. Each segment is trimmed. Maps are
// indexed by key and slices by numeric index. The boolean is false as soon as a segment
// is missing or the current value cannot be indexed.
func Lookup(path string, data map[string]any) (any, bool) {
	var current any = data

	for _, segment := range strings.Split(path, ".") {
		segment = strings.TrimSpace(segment)

		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = value
		case map[string]string:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

// String renders a context value in its default textual form: integral numbers without
// a decimal point, booleans as true/false, nil as "null" and composites as JSON.
func String(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any, map[string]string, []string:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}
