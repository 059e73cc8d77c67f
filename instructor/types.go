// Package instructor extracts typed, validated data from LLM chat completions.
// This file defines the wire structures for function descriptors and the
// error taxonomy used across the extraction pipeline.
package instructor

import (
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/hamzaessahbaoui/ai-instructor/pkg/transport"
)

// --- Function Descriptor Structures ---

// FunctionDescriptor is the OpenAI-style callable tool built from a response model.
// It is the provider-neutral form; providers convert it to their own wire shape.
type FunctionDescriptor struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function holds the name, description and parameter schema of a tool.
type Function struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// AnthropicTool is the tool shape expected by the Anthropic messages API.
type AnthropicTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// --- Error Handling ---

// Sentinel errors matched by the typed errors below. Use errors.Is to check.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTemplating    = errors.New("templating error")
	ErrProvider      = errors.New("provider error")
	ErrDecode        = errors.New("decode error")
	ErrValidation    = errors.New("validation error")
)

// ConfigurationError reports bad model metadata or bad call parameters,
// e.g. non-textual instructions. It is never retried.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string { return render("configuration_error", e.Message, e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// TemplatingError reports a validation context that cannot be applied to the prompt.
type TemplatingError struct {
	Key     string // missing placeholder key, if any
	Message string
}

func (e *TemplatingError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("templating_error: key<%s> not found", e.Key)
	}
	return render("templating_error", e.Message, nil)
}
func (e *TemplatingError) Is(target error) bool { return target == ErrTemplating }

// ProviderError carries an explicit error envelope returned by the provider.
type ProviderError struct {
	Type    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider_error: %s - %s", e.Type, e.Message)
}
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// DecodeError reports tool-call arguments that are not valid JSON. Retryable.
type DecodeError struct {
	Arguments string
	Err       error
}

func (e *DecodeError) Error() string {
	return render("decode_error", "invalid tool call arguments", e.Err)
}
func (e *DecodeError) Unwrap() error { return e.Err }
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// ValidationError reports a payload that does not satisfy the response model.
// Index is the position of the failing payload in a collection call, -1 otherwise. Retryable.
type ValidationError struct {
	Index   int
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Index >= 0 {
		msg = fmt.Sprintf("item %d: %s", e.Index, msg)
	}
	return render("validation_error", msg, e.Err)
}
func (e *ValidationError) Unwrap() error { return e.Err }
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsRetryable reports whether err is transient for the retry loop:
// decode errors, validation errors and malformed provider responses.
func IsRetryable(err error) bool {
	var (
		de *DecodeError
		ve *ValidationError
	)
	return errors.As(err, &de) || errors.As(err, &ve) || transport.IsParseError(err)
}

// newValidationError wraps err unless it already is a ValidationError.
// Configuration errors are returned as is.
func newValidationError(index int, err error) error {
	if errors.Is(err, ErrConfiguration) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Index < 0 && index >= 0 {
			return &ValidationError{Index: index, Message: ve.Message, Err: ve.Err}
		}
		return ve
	}
	return &ValidationError{Index: index, Message: "payload does not satisfy the response model", Err: err}
}

func render(code, message string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("%s: %s", code, message)
	case message == "":
		return fmt.Sprintf("%s: %v", code, err)
	default:
		return fmt.Sprintf("%s: %s: %v", code, message, err)
	}
}
