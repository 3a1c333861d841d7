package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// FieldType is the JSON type of a tool argument.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
)

// Field describes one named tool argument.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Default     any      // applied when the field is absent
	Min, Max    *float64 // numeric bounds, inclusive
	MaxLength   int      // in characters; 0 means unbounded
	Enum        []string
}

// Schema is the structural input schema of a tool.
type Schema struct {
	Fields []Field
}

// Bound returns a pointer for Field.Min and Field.Max.
func Bound(v float64) *float64 { return &v }

// ValidationError reports the first argument that violated the schema.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Constraint)
}

// Validate checks raw against the schema and returns typed arguments with
// defaults applied. Strings stay string, numbers become float64, integers int,
// booleans bool.
func (s Schema) Validate(raw map[string]any) (Args, error) {
	known := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		known[f.Name] = true
	}
	var unknown []string
	for k := range raw {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ValidationError{Field: unknown[0], Constraint: "unknown field"}
	}

	args := make(Args, len(s.Fields))
	for _, f := range s.Fields {
		v, present := raw[f.Name]
		if !present || v == nil {
			if f.Required {
				return nil, &ValidationError{Field: f.Name, Constraint: "is required"}
			}
			if f.Default != nil {
				args[f.Name] = f.Default
			}
			continue
		}
		typed, err := f.coerce(v)
		if err != nil {
			return nil, err
		}
		args[f.Name] = typed
	}
	return args, nil
}

func (f Field) invalid(format string, a ...any) error {
	return &ValidationError{Field: f.Name, Constraint: fmt.Sprintf(format, a...)}
}

func (f Field) coerce(v any) (any, error) {
	switch f.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, f.invalid("must be a string")
		}
		if f.Required && strings.TrimSpace(s) == "" {
			return nil, f.invalid("must not be empty")
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
			return nil, f.invalid("must be at most %d characters", f.MaxLength)
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return nil, f.invalid("must be one of %s", strings.Join(f.Enum, ", "))
		}
		return s, nil

	case TypeNumber, TypeInteger:
		n, ok := toFloat(v)
		if !ok {
			return nil, f.invalid("must be a number")
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, f.invalid("must be finite")
		}
		if f.Type == TypeInteger && n != math.Trunc(n) {
			return nil, f.invalid("must be an integer")
		}
		if f.Min != nil && n < *f.Min {
			return nil, f.invalid("must be >= %g", *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return nil, f.invalid("must be <= %g", *f.Max)
		}
		if f.Type == TypeInteger {
			return int(n), nil
		}
		return n, nil

	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, f.invalid("must be a boolean")
		}
		return b, nil
	}
	return nil, f.invalid("has unsupported type %q", f.Type)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Args are validated tool arguments.
type Args map[string]any

func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a Args) Int(key string) int {
	switch n := a[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
