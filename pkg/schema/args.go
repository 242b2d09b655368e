package schema

import "sort"

// Field describes one tool argument.
type Field struct {
	Type        Type
	Required    bool
	Default     any
	Description string
}

// Args maps argument names to their field specs.
type Args map[string]Field

// ApplyDefaults returns a copy of data with defaults filled in for absent
// optional arguments. The input map is not mutated.
func (a Args) ApplyDefaults(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for name, field := range a {
		if _, ok := out[name]; !ok && !field.Required && field.Default != nil {
			out[name] = field.Default
		}
	}
	return out
}

// Validate checks data against the schema: required arguments must be
// present, every value must conform to its declared type, and unknown
// arguments are rejected.
func (a Args) Validate(data map[string]any) error {
	var errs []error

	for _, name := range a.Names() {
		field := a[name]
		value, exists := data[name]
		if !exists {
			if field.Required {
				errs = append(errs, &ValidationError{Key: name, Reason: "required"})
			}
			continue
		}
		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: name, Reason: err.Error(), Value: value})
		}
	}

	for key := range data {
		if _, ok := a[key]; !ok {
			errs = append(errs, &ValidationError{Key: key, Reason: "not defined in schema"})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Names returns the argument names in stable order.
func (a Args) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enum returns the allowed values of the named argument if it is an enum.
func (a Args) Enum(name string) ([]string, bool) {
	field, ok := a[name]
	if !ok {
		return nil, false
	}
	enum, ok := field.Type.(*EnumType)
	if !ok {
		return nil, false
	}
	return enum.Values(), true
}
