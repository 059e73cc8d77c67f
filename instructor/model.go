package instructor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hamzaessahbaoui/ai-instructor/pkg/schema"
)

// --- Response Model Wrappers ---

// ResponseModel is the target of a call: one model, or a collection of it.
// Whether a call is a collection call is fixed here, before any request is
// sent, and never depends on how many tool calls come back.
type ResponseModel struct {
	model    Model
	iterable bool
}

// Single requests one instance of m.
func Single(m Model) *ResponseModel { return &ResponseModel{model: m} }

// Many requests an ordered collection of m, one instance per tool call.
func Many(m Model) *ResponseModel { return &ResponseModel{model: m, iterable: true} }

// Model returns the wrapped model.
func (rm *ResponseModel) Model() Model { return rm.model }

// Iterable reports whether rm is a collection.
func (rm *ResponseModel) Iterable() bool { return rm.iterable }

// Validatable is implemented by struct models with rules beyond their tags.
// It runs after tag validation succeeds.
type Validatable interface {
	Validate() error
}

// --- Struct Models ---

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
		structValidator.RegisterTagNameFunc(func(sf reflect.StructField) string {
			name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return structValidator
}

type structModel[T any] struct {
	once       sync.Once
	descriptor *schema.Descriptor
	err        error
	jsonSchema compiledSchema
}

// For returns the Model for the struct type T. Instances are *T.
func For[T any]() Model {
	return &structModel[T]{}
}

func (m *structModel[T]) Descriptor() (*schema.Descriptor, error) {
	m.once.Do(func() {
		m.descriptor, m.err = schema.DescribeOf[T]()
	})
	return m.descriptor, m.err
}

// New decodes payload into a *T. Required fields must be present in payload
// (a zero value such as 0 or false counts as present), values are cast loosely
// ("25" becomes 25), declared defaults fill absent keys, then validate tags and
// Validatable run. A validate:"required" tag still rejects zero values, so
// numeric and boolean fields mark presence with jsonschema:"required".
func (m *structModel[T]) New(payload any) (any, error) {
	d, err := m.Descriptor()
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, &ValidationError{Index: -1, Message: fmt.Sprintf("expected an object, got %T", payload)}
	}

	obj = withDefaults(d, obj)
	if missing := missingRequired(d, obj, d.Name); len(missing) > 0 {
		return nil, &ValidationError{Index: -1, Message: strings.Join(missing, "; ")}
	}

	out := new(T)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToTimeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result: out,
	})
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	if err := dec.Decode(obj); err != nil {
		return nil, &ValidationError{Index: -1, Message: "cannot decode payload", Err: err}
	}

	if err := getValidator().Struct(out); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil, &ConfigurationError{Err: err}
		}
		return nil, &ValidationError{Index: -1, Message: describeViolations(err), Err: err}
	}
	if v, ok := any(out).(Validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, &ValidationError{Index: -1, Message: err.Error(), Err: err}
		}
	}
	return out, nil
}

// missingRequired lists the required fields absent from obj, or present as
// null, descending into nested objects and arrays of objects.
func missingRequired(d *schema.Descriptor, obj map[string]any, prefix string) []string {
	var missing []string
	for _, f := range d.Fields {
		v, ok := obj[f.Name]
		path := prefix + "." + f.Name
		if f.Required && (!ok || v == nil) {
			missing = append(missing, path+" failed required")
			continue
		}
		if f.Of == nil {
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			missing = append(missing, missingRequired(f.Of, nested, path)...)
		case []any:
			for i, item := range nested {
				if im, ok := item.(map[string]any); ok {
					missing = append(missing, missingRequired(f.Of, im, fmt.Sprintf("%s[%d]", path, i))...)
				}
			}
		}
	}
	return missing
}

func describeViolations(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), rule))
	}
	return strings.Join(msgs, "; ")
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
	time.TimeOnly,
	"15:04",
}

func stringToTimeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a date or time", s)
}

// --- Descriptor Models ---

type descriptorModel struct {
	descriptor *schema.Descriptor
	jsonSchema compiledSchema
}

// FromDescriptor returns a Model for a descriptor built at runtime.
// Instances are map[string]any validated against the compiled schema, which
// is built on first use and kept by the model; d must not change afterwards.
func FromDescriptor(d *schema.Descriptor) Model {
	return &descriptorModel{descriptor: d}
}

func (m *descriptorModel) Descriptor() (*schema.Descriptor, error) {
	if err := m.descriptor.Check(); err != nil {
		return nil, err
	}
	return m.descriptor, nil
}

func (m *descriptorModel) New(payload any) (any, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, &ValidationError{Index: -1, Message: fmt.Sprintf("expected an object, got %T", payload)}
	}
	out := withDefaults(m.descriptor, obj)
	if err := m.jsonSchema.validate(m.descriptor, withoutNullNullables(m.descriptor, out)); err != nil {
		return nil, err
	}
	return out, nil
}

// withDefaults returns a copy of obj with declared defaults filled in for
// absent keys, descending into nested objects and arrays of objects.
func withDefaults(d *schema.Descriptor, obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj)+len(d.Fields))
	for k, v := range obj {
		out[k] = v
	}
	for _, f := range d.Fields {
		v, present := out[f.Name]
		if !present {
			if f.HasDefault {
				out[f.Name] = f.Default
			}
			continue
		}
		if f.Of == nil {
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[f.Name] = withDefaults(f.Of, nested)
		case []any:
			items := make([]any, len(nested))
			for i, item := range nested {
				if im, ok := item.(map[string]any); ok {
					items[i] = withDefaults(f.Of, im)
				} else {
					items[i] = item
				}
			}
			out[f.Name] = items
		}
	}
	return out
}

// withoutNullNullables drops top-level nulls of nullable fields, which the
// compiled schema types as their non-null type.
func withoutNullNullables(d *schema.Descriptor, obj map[string]any) map[string]any {
	var out map[string]any
	for _, f := range d.Fields {
		if v, ok := obj[f.Name]; ok && v == nil && f.Nullable {
			if out == nil {
				out = make(map[string]any, len(obj))
				for k, v := range obj {
					out[k] = v
				}
			}
			delete(out, f.Name)
		}
	}
	if out == nil {
		return obj
	}
	return out
}

// --- JSON Schema Validation ---

// schemaValidated is implemented by models that keep their compiled schema.
type schemaValidated interface {
	validateSchema(payload any) error
}

func (m *structModel[T]) validateSchema(payload any) error {
	d, err := m.Descriptor()
	if err != nil {
		return &ConfigurationError{Err: err}
	}
	return m.jsonSchema.validate(d, payload)
}

func (m *descriptorModel) validateSchema(payload any) error {
	return m.jsonSchema.validate(m.descriptor, payload)
}

// compiledSchema compiles one descriptor's JSON Schema once.
type compiledSchema struct {
	once   sync.Once
	schema *sjsonschema.Schema
	err    error
}

func (c *compiledSchema) validate(d *schema.Descriptor, payload any) error {
	c.once.Do(func() {
		c.schema, c.err = compileSchema(d)
	})
	if c.err != nil {
		return &ConfigurationError{Message: "cannot compile schema for " + d.Name, Err: c.err}
	}
	return validatePayload(c.schema, payload)
}

func compileSchema(d *schema.Descriptor) (*sjsonschema.Schema, error) {
	raw, err := json.Marshal(schema.Compile(d))
	if err != nil {
		return nil, err
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	const url = "model.json"
	c := sjsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// validateAgainstSchema checks payload against m's JSON Schema. Models that do
// not keep a compiled schema get theirs compiled for this check only.
func validateAgainstSchema(m Model, d *schema.Descriptor, payload any) error {
	if sv, ok := m.(schemaValidated); ok {
		return sv.validateSchema(payload)
	}
	var c compiledSchema
	return c.validate(d, payload)
}

func validatePayload(s *sjsonschema.Schema, payload any) error {
	// Round-trip through JSON so numbers and nested values have the shapes
	// the validator expects.
	raw, err := json.Marshal(payload)
	if err != nil {
		return &ValidationError{Index: -1, Message: "payload is not JSON encodable", Err: err}
	}
	v, err := sjsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Index: -1, Message: "payload is not JSON encodable", Err: err}
	}
	if err := s.Validate(v); err != nil {
		return &ValidationError{Index: -1, Message: "payload does not match the schema", Err: err}
	}
	return nil
}
