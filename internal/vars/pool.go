package vars

import (
	"encoding/json"

	"github.com/varflow/varflow/pkg/schema"
)

// Pool is the full set of workflow variables and their current values.
// All mutating helpers return a new backing slice; the engine never mutates
// a caller's pool in place.
type Pool []schema.Variable

// Lookup returns a pointer into the pool for the variable with the given
// name, or nil if absent.
func (p Pool) Lookup(name string) *schema.Variable {
	for i := range p {
		if p[i].Name == name {
			return &p[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the pool. Values are copied through their
// JSON representation, which covers every value shape the engine produces.
func (p Pool) Clone() Pool {
	cp := make(Pool, len(p))
	copy(cp, p)
	for i := range cp {
		cp[i].Value = deepCopyValue(cp[i].Value)
	}
	return cp
}

// WithValue returns a new pool with the named variable's value replaced.
// Pools without the variable are returned unchanged.
func (p Pool) WithValue(name string, value any) Pool {
	cp := p.Clone()
	if v := cp.Lookup(name); v != nil {
		v.Value = value
	}
	return cp
}

// ClearValues returns a new pool with every value removed. Variables
// themselves are never deleted during execution, only their values.
func (p Pool) ClearValues() Pool {
	cp := p.Clone()
	for i := range cp {
		cp[i].Value = nil
	}
	return cp
}

// DuplicateName returns the first duplicated variable name, if any.
// Name uniqueness is an invariant enforced on every bulk state replace.
func DuplicateName(state []schema.Variable) (string, bool) {
	seen := make(map[string]struct{}, len(state))
	for i := range state {
		if _, ok := seen[state[i].Name]; ok {
			return state[i].Name, true
		}
		seen[state[i].Name] = struct{}{}
	}
	return "", false
}

// deepCopyValue recursively copies maps and slices; primitives are value
// types and pass through.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, item := range val {
			cp[k] = deepCopyValue(item)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
