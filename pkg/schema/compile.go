package schema

import (
	"github.com/invopop/jsonschema"
)

// Compile converts a descriptor into its JSON Schema document. Properties keep
// the descriptor's field order, "required" is left out entirely when no field
// is required, and arrays of objects embed the nested model's compiled schema
// as "items". Compile never fails; run Check first to enforce invariants.
func Compile(d *Descriptor) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Description: ModelDescription(d.Name),
		Type:        "object",
		Properties:  jsonschema.NewProperties(),
		Required:    d.RequiredFields(),
	}
	for _, f := range d.Fields {
		s.Properties.Set(f.Name, compileField(f))
	}
	for _, c := range d.Conditions {
		if c == nil || c.Empty() {
			continue
		}
		s.AllOf = append(s.AllOf, c.Schema())
	}
	return s
}

func compileField(f Field) *jsonschema.Schema {
	p := &jsonschema.Schema{
		Title:       Humanize(f.Name),
		Type:        jsonType(f.Type),
		Format:      formatFor(f.Type),
		Description: f.Description,
	}
	if f.HasDefault || f.Default != nil {
		p.Default = f.Default
	}
	if len(f.Enum) > 0 {
		p.Enum = f.Enum
	}

	switch f.Type {
	case TypeArray:
		if f.Of != nil {
			p.Items = Compile(f.Of)
		} else if f.Items != "" {
			p.Items = &jsonschema.Schema{Type: jsonType(f.Items), Format: formatFor(f.Items)}
		}
	case TypeObject:
		if f.Of != nil {
			nested := Compile(f.Of)
			p.Properties = nested.Properties
			p.Required = nested.Required
		}
	}
	return p
}

// jsonType maps a semantic type onto a JSON Schema primitive. Unknown types are strings.
func jsonType(t FieldType) string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	default:
		return "string"
	}
}

func formatFor(t FieldType) string {
	switch t {
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "date-time"
	case TypeTime:
		return "time"
	}
	return ""
}
