// Package schema describes the shape of a response model and compiles it into
// the JSON Schema document that is sent to an LLM as a tool's parameters.
//
// A Descriptor can be written by hand (for models only known at runtime, e.g.
// loaded from a file) or derived from a Go struct with Describe.
package schema

import (
	"fmt"
	"reflect"
)

// FieldType is the semantic type of a descriptor field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeTime     FieldType = "time"
	TypeArray    FieldType = "array"
	TypeObject   FieldType = "object"
)

// Field is one declared attribute of a model.
type Field struct {
	Name        string    `json:"name" mapstructure:"name" validate:"required"`
	Type        FieldType `json:"type" mapstructure:"type"`
	Description string    `json:"description,omitempty" mapstructure:"description"`
	Default     any       `json:"default,omitempty" mapstructure:"default"`
	// HasDefault distinguishes a declared zero default (false, 0) from no default.
	HasDefault bool  `json:"has_default,omitempty" mapstructure:"has_default"`
	Nullable   bool  `json:"nullable,omitempty" mapstructure:"nullable"`
	Enum       []any `json:"enum,omitempty" mapstructure:"enum"`
	Required   bool  `json:"required,omitempty" mapstructure:"required"`
	// Of is the nested model for object fields and arrays of objects.
	Of *Descriptor `json:"of,omitempty" mapstructure:"of"`
	// Items is the element type for arrays of primitives.
	Items FieldType `json:"items,omitempty" mapstructure:"items"`
}

// Descriptor is the ordered, user-declared shape of a response model.
type Descriptor struct {
	// Name is the model's type name, e.g. "UserDetail".
	Name  string `json:"name" mapstructure:"name" validate:"required"`
	Title string `json:"title,omitempty" mapstructure:"title"`
	// Instructions is declared as any so that a non-textual value can be
	// reported as a configuration error instead of being silently dropped.
	Instructions any                   `json:"instructions,omitempty" mapstructure:"instructions"`
	Fields       []Field               `json:"fields" mapstructure:"fields" validate:"dive"`
	Conditions   []*ConditionalRequire `json:"-" mapstructure:"-"`
}

// InvalidDescriptorError reports a descriptor that breaks one of its invariants.
type InvalidDescriptorError struct {
	Model  string
	Field  string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid model %q: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("invalid model %q: field %q %s", e.Model, e.Field, e.Reason)
}

// Field returns the field with the given name.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RequiredFields returns the names of fields with a presence constraint, in declaration order.
func (d *Descriptor) RequiredFields() []string {
	var names []string
	for _, f := range d.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Check verifies the descriptor invariants: unique field names and no
// required field carrying a blank default. Nested descriptors are checked too.
func (d *Descriptor) Check() error {
	if d == nil {
		return &InvalidDescriptorError{Reason: "descriptor is nil"}
	}
	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return &InvalidDescriptorError{Model: d.Name, Reason: "has a field without a name"}
		}
		if _, dup := seen[f.Name]; dup {
			return &InvalidDescriptorError{Model: d.Name, Field: f.Name, Reason: "is declared more than once"}
		}
		seen[f.Name] = struct{}{}
		if f.Required && f.HasDefault && isBlank(f.Default) {
			return &InvalidDescriptorError{Model: d.Name, Field: f.Name, Reason: "is required but defaults to a blank value"}
		}
		if f.Of != nil {
			if err := f.Of.Check(); err != nil {
				return err
			}
		}
	}
	return nil
}

// isBlank mirrors a presence check: nil, empty strings and empty collections are blank.
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
