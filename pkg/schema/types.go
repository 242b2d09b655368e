package schema

import (
	"fmt"
	"strings"
)

// Type defines the contract for argument validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "int").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// --- Built-in Type Implementations ---

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// IntType validates integer values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// Accept floats that are whole numbers (from JSON unmarshaling)
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

// FloatType validates floating-point values.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// EnumType validates that a string value belongs to a fixed set.
// Matching is case-insensitive; the canonical casing is the declared one.
type EnumType struct {
	values []string
}

func (t *EnumType) Name() string {
	return fmt.Sprintf("enum(%s)", strings.Join(t.values, "|"))
}

func (t *EnumType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	for _, v := range t.values {
		if strings.EqualFold(v, s) {
			return nil
		}
	}
	return fmt.Errorf("value %q not in {%s}", s, strings.Join(t.values, ", "))
}

// Values returns the allowed members in declaration order.
func (t *EnumType) Values() []string {
	return append([]string(nil), t.values...)
}

// Canonical maps a case-insensitive match to its declared casing.
func (t *EnumType) Canonical(s string) (string, bool) {
	for _, v := range t.values {
		if strings.EqualFold(v, s) {
			return v, true
		}
	}
	return "", false
}

// RangeType validates numbers within [min, max].
type RangeType struct {
	min, max float64
}

func (t *RangeType) Name() string {
	return fmt.Sprintf("number[%g..%g]", t.min, t.max)
}

func (t *RangeType) Validate(value any) error {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return fmt.Errorf("expected number, got %T", value)
	}
	if f < t.min || f > t.max {
		return fmt.Errorf("value %g outside range [%g, %g]", f, t.min, t.max)
	}
	return nil
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Float creates a float type validator.
func Float() Type { return &FloatType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Enum creates a fixed-set string validator.
func Enum(values ...string) Type { return &EnumType{values: values} }

// Range creates a bounded numeric validator.
func Range(min, max float64) Type { return &RangeType{min: min, max: max} }

// ParseType converts a string type name to a Type.
// Supports "string", "int", "float", "bool".
func ParseType(typeStr string) (Type, error) {
	switch typeStr {
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
}
