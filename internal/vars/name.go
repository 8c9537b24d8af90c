package vars

import (
	"strings"

	"github.com/varflow/varflow/pkg/schema"
)

// Name is an opaque variable name. Constructing one through NewName validates
// the string once, so the rest of the engine can compare names without
// re-checking format.
type Name struct {
	value string
}

// NewName validates and wraps a variable name. Names must be non-empty and
// must not contain path accessor characters, which would make them ambiguous
// inside variable paths.
func NewName(s string) (Name, error) {
	if s == "" {
		return Name{}, schema.NewError(schema.ErrCodeValidation, "variable name is empty")
	}
	if strings.ContainsAny(s, ".[]") {
		return Name{}, schema.NewErrorf(schema.ErrCodeValidation,
			"variable name %q contains reserved path characters", s)
	}
	return Name{value: s}, nil
}

// String returns the underlying name.
func (n Name) String() string { return n.value }

// Equals compares two names.
func (n Name) Equals(other Name) bool { return n.value == other.value }

// IsZero reports whether the name is the zero value.
func (n Name) IsZero() bool { return n.value == "" }
