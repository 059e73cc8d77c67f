package instructor

import (
	"fmt"

	"github.com/hamzaessahbaoui/ai-instructor/pkg/schema"
)

// GenerateName returns the function name for a model: its schema title when
// set, else its type name.
func GenerateName(d *schema.Descriptor) string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// GenerateDescription returns the model's instructions verbatim when declared.
// Instructions that are not a string are a configuration error. Without
// instructions a generic description naming the model is used.
func GenerateDescription(d *schema.Descriptor) (string, error) {
	if d.Instructions == nil {
		return fmt.Sprintf("Correctly extracted `%s` with all the required parameters with correct types", d.Name), nil
	}
	text, ok := d.Instructions.(string)
	if !ok {
		return "", &ConfigurationError{Message: fmt.Sprintf("the instructions of %s must be a string, got %T", d.Name, d.Instructions)}
	}
	return text, nil
}

// BuildFunction builds the function descriptor sent to the provider as the
// only tool of a request.
//
// Parameters:
//   - d: The model's descriptor, built with schema.DescribeOf or by hand
//
// Behavior:
//   - d is checked first; duplicate field names and required fields with a
//     blank default are rejected
//   - The name comes from GenerateName, the description from GenerateDescription
//   - Parameters are the compiled JSON Schema, properties in field order
//
// Returns:
//   - The descriptor, or a *ConfigurationError wrapping the failed check
//
// Example:
//
//	d, _ := schema.DescribeOf[models.UserDetail]()
//	fn, err := instructor.BuildFunction(d)
//	// fn.Function.Name == "UserDetail"
func BuildFunction(d *schema.Descriptor) (FunctionDescriptor, error) {
	if err := d.Check(); err != nil {
		return FunctionDescriptor{}, &ConfigurationError{Err: err}
	}
	description, err := GenerateDescription(d)
	if err != nil {
		return FunctionDescriptor{}, err
	}
	return FunctionDescriptor{
		Type: "function",
		Function: Function{
			Name:        GenerateName(d),
			Description: description,
			Parameters:  schema.Compile(d),
		},
	}, nil
}
