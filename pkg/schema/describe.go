package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Titled is implemented by models that name their schema explicitly.
// The title becomes the tool/function name sent to the LLM.
type Titled interface {
	SchemaTitle() string
}

// Instructed is implemented by models that carry their own extraction
// instructions. The value must be a string; anything else is a configuration error.
type Instructed interface {
	Instructions() any
}

// instructedText is the common form of Instructed returning a plain string.
type instructedText interface {
	Instructions() string
}

var (
	timeType = reflect.TypeOf(time.Time{})

	describeCache sync.Map // reflect.Type -> *Descriptor
)

// Describe derives a Descriptor from a Go struct type. Field names come from
// json tags, presence and enumeration constraints from validate tags
// ("required", "oneof=a b") or jsonschema tags ("required", "enum=a|b"), and
// defaults/formats/descriptions from jsonschema tags ("default=0",
// "format=date", "description=..."). The result is cached per type and must
// not be mutated.
func Describe(t reflect.Type) (*Descriptor, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot describe %v: response models must be structs", t)
	}
	if d, ok := describeCache.Load(t); ok {
		return d.(*Descriptor), nil
	}
	d, err := describeStruct(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	actual, _ := describeCache.LoadOrStore(t, d)
	return actual.(*Descriptor), nil
}

// DescribeOf is Describe for a type parameter.
func DescribeOf[T any]() (*Descriptor, error) {
	return Describe(reflect.TypeOf((*T)(nil)).Elem())
}

func describeStruct(t reflect.Type, visiting map[reflect.Type]bool) (*Descriptor, error) {
	visiting[t] = true
	defer delete(visiting, t)

	d := &Descriptor{Name: t.Name()}
	zero := reflect.New(t)
	if titled, ok := zero.Interface().(Titled); ok {
		d.Title = titled.SchemaTitle()
	}
	switch in := zero.Interface().(type) {
	case Instructed:
		d.Instructions = in.Instructions()
	case instructedText:
		d.Instructions = in.Instructions()
	}

	if err := appendFields(d, t, visiting); err != nil {
		return nil, err
	}
	return d, nil
}

func appendFields(d *Descriptor, t reflect.Type, visiting map[reflect.Type]bool) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, skip := jsonName(sf)
		if skip {
			continue
		}
		if sf.Anonymous && name == "" {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				if err := appendFields(d, et, visiting); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		f, err := describeField(name, sf, visiting)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
		}
		d.Fields = append(d.Fields, f)
	}
	return nil
}

func jsonName(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, false
}

func describeField(name string, sf reflect.StructField, visiting map[reflect.Type]bool) (Field, error) {
	f := Field{Name: name}
	ft := sf.Type
	if ft.Kind() == reflect.Pointer {
		f.Nullable = true
		ft = ft.Elem()
	}

	tags := parseSchemaTag(sf.Tag.Get("jsonschema"))
	f.Type = fieldType(ft, tags.format)
	f.Description = tags.description
	f.Nullable = f.Nullable || tags.nullable
	f.Required = tags.required

	for _, rule := range strings.Split(sf.Tag.Get("validate"), ",") {
		rule = strings.TrimSpace(rule)
		switch {
		case rule == "required":
			f.Required = true
		case strings.HasPrefix(rule, "oneof="):
			tags.enum = append(tags.enum, strings.Fields(strings.TrimPrefix(rule, "oneof="))...)
		}
	}

	for _, raw := range tags.enum {
		v, err := parseScalar(raw, f.Type)
		if err != nil {
			return Field{}, fmt.Errorf("enum value %q: %w", raw, err)
		}
		f.Enum = append(f.Enum, v)
	}
	if tags.hasDefault {
		v, err := parseScalar(tags.defaultValue, f.Type)
		if err != nil {
			return Field{}, fmt.Errorf("default %q: %w", tags.defaultValue, err)
		}
		f.Default, f.HasDefault = v, true
	}

	switch f.Type {
	case TypeArray:
		et := ft.Elem()
		if et.Kind() == reflect.Pointer {
			et = et.Elem()
		}
		if et.Kind() == reflect.Struct && et != timeType {
			if !visiting[et] {
				nested, err := describeStruct(et, visiting)
				if err != nil {
					return Field{}, err
				}
				f.Of = nested
			}
		} else {
			f.Items = fieldType(et, "")
		}
	case TypeObject:
		if ft.Kind() == reflect.Struct && !visiting[ft] {
			nested, err := describeStruct(ft, visiting)
			if err != nil {
				return Field{}, err
			}
			f.Of = nested
		}
	}
	return f, nil
}

func fieldType(t reflect.Type, format string) FieldType {
	switch format {
	case "date":
		return TypeDate
	case "date-time":
		return TypeDateTime
	case "time":
		return TypeTime
	}
	if t == timeType {
		return TypeDateTime
	}
	switch t.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return TypeString
		}
		return TypeArray
	case reflect.Struct, reflect.Map:
		return TypeObject
	}
	return TypeString
}

// parseScalar converts a tag literal into a value of the field's JSON type.
func parseScalar(raw string, t FieldType) (any, error) {
	switch t {
	case TypeInteger:
		return strconv.ParseInt(raw, 10, 64)
	case TypeNumber:
		return strconv.ParseFloat(raw, 64)
	case TypeBoolean:
		return strconv.ParseBool(raw)
	case TypeArray, TypeObject:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return raw, nil
}

type schemaTag struct {
	required     bool
	nullable     bool
	description  string
	format       string
	enum         []string
	defaultValue string
	hasDefault   bool
}

// parseSchemaTag reads the jsonschema struct tag. Options are comma separated;
// a literal comma inside a value is written as "\,". Enum values may repeat
// the key or be separated by "|".
func parseSchemaTag(tag string) schemaTag {
	var st schemaTag
	for _, opt := range splitTag(tag) {
		key, value, hasValue := strings.Cut(opt, "=")
		switch key {
		case "required":
			st.required = true
		case "nullable":
			st.nullable = true
		case "description":
			st.description = value
		case "format":
			st.format = value
		case "enum":
			st.enum = append(st.enum, strings.Split(value, "|")...)
		case "default":
			st.defaultValue, st.hasDefault = value, hasValue
		}
	}
	return st
}

func splitTag(tag string) []string {
	if tag == "" {
		return nil
	}
	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(tag); i++ {
		switch {
		case tag[i] == '\\' && i+1 < len(tag) && tag[i+1] == ',':
			cur.WriteByte(',')
			i++
		case tag[i] == ',':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(tag[i])
		}
	}
	return append(parts, cur.String())
}
