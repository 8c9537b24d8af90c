// Package coerce converts raw tool outputs into the shape a variable's
// schema demands. Conversions are lossy and best-effort: the engine always
// produces a value of the declared shape instead of rejecting malformed
// input.
package coerce

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/varflow/varflow/pkg/schema"
)

// Coerce converts value into the shape demanded by target. Array targets
// normalize to a slice with every element coerced to the declared element
// type; scalar targets follow the element rules. Coercion is idempotent.
func Coerce(value any, target schema.ValueSchema) any {
	if target.IsArray {
		element := target
		element.IsArray = false

		arr, ok := value.([]any)
		if !ok {
			if value == nil {
				return []any{}
			}
			arr = []any{value}
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = coerceScalar(item, element)
		}
		return out
	}
	return coerceScalar(value, target)
}

// coerceScalar applies the element-level rules for a non-array target.
func coerceScalar(value any, target schema.ValueSchema) any {
	switch target.Type {
	case schema.TypeString, schema.TypeFile:
		return toString(value)
	case schema.TypeNumber:
		return toNumber(value)
	case schema.TypeBoolean:
		return toBool(value)
	case schema.TypeObject:
		return toObject(value)
	default:
		return value
	}
}

// DefaultValue synthesizes a zero value matching the schema: empty array,
// zero scalar, or an object with every declared field defaulted.
func DefaultValue(s schema.ValueSchema) any {
	if s.IsArray {
		return []any{}
	}
	switch s.Type {
	case schema.TypeString, schema.TypeFile:
		return ""
	case schema.TypeNumber:
		return float64(0)
	case schema.TypeBoolean:
		return false
	case schema.TypeObject:
		obj := make(map[string]any, len(s.Fields))
		for name, field := range s.Fields {
			obj[name] = DefaultValue(field)
		}
		return obj
	default:
		return nil
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = toString(item)
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}
		return string(b)
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func toNumber(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return n
	case []any:
		if len(v) > 0 {
			return toNumber(v[0])
		}
		return 0
	default:
		// Non-numeric input defaults to 0.
		return 0
	}
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	case []any:
		return len(v) > 0
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}

func toObject(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil || obj == nil {
			return map[string]any{}
		}
		return obj
	default:
		return map[string]any{}
	}
}
