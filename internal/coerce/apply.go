package coerce

import (
	"encoding/json"

	"github.com/varflow/varflow/pkg/schema"
)

// StringAppendDelimiter separates accumulated string values.
const StringAppendDelimiter = "\n\n"

// Apply produces the new value for a variable given an output mapping and a
// raw tool output. The second return is false when no change should be
// applied (unknown operation); callers treat that as a no-op, not a crash.
func Apply(variable schema.Variable, mapping schema.OutputMapping, output any) (any, bool) {
	m := mapping.Normalized()

	switch m.Operation {
	case schema.OperationAssign:
		return Coerce(output, variable.Schema), true

	case schema.OperationAppend:
		return applyAppend(variable, output), true

	default:
		return nil, false
	}
}

func applyAppend(variable schema.Variable, output any) any {
	s := variable.Schema

	if s.IsArray {
		return appendToArray(variable.Value, output, s)
	}

	if s.Type == schema.TypeString || s.Type == schema.TypeFile {
		if current, ok := variable.Value.(string); ok {
			return current + StringAppendDelimiter + stringifyForAppend(output)
		}
	}

	// Any other schema (or a string variable without a string value yet)
	// falls back to assign semantics.
	return Coerce(output, s)
}

// appendToArray accumulates onto an array variable. A missing or empty
// current value initializes the array; a non-array current value is healed
// by coercing both sides into a fresh 2-element array.
func appendToArray(current, output any, s schema.ValueSchema) any {
	element := s
	element.IsArray = false

	newElems, ok := Coerce(output, s).([]any)
	if !ok {
		newElems = []any{coerceScalar(output, element)}
	}

	switch cur := current.(type) {
	case nil:
		return newElems
	case []any:
		combined := make([]any, 0, len(cur)+len(newElems))
		combined = append(combined, cur...)
		combined = append(combined, newElems...)
		return combined
	default:
		// Inconsistent prior state: coerce both values to elements.
		return []any{coerceScalar(cur, element), coerceScalar(output, element)}
	}
}

// stringifyForAppend JSON-stringifies objects and stringifies everything
// else before concatenation onto a string variable.
func stringifyForAppend(output any) string {
	if obj, ok := output.(map[string]any); ok {
		b, err := json.Marshal(obj)
		if err != nil {
			return "{}"
		}
		return string(b)
	}
	return toString(output)
}
