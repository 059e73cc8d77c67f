// Package instructor extracts typed, validated data from LLM chat completions.
// It sends a response model's JSON Schema to the model as a callable tool,
// parses the tool call(s) that come back, and validates them into Go values,
// retrying the whole round trip when the model's answer is malformed.
//
// Core concepts:
//   - Model: a response model that can describe its shape and build validated instances
//   - Provider: the wire conventions of one LLM API (tool shape, tool choice, response format)
//   - Response: a parsed provider reply exposing the decoded tool-call arguments
//   - Client: the retrying pipeline binding a transport, a provider and a mode
//
// This file defines the core interfaces that Model, Provider and Response
// implementations must satisfy.
package instructor

import (
	"github.com/hamzaessahbaoui/ai-instructor/pkg/schema"
)

// Model is a response model: the shape the caller wants the answer in.
// Implementations exist for Go structs (For) and for runtime descriptors
// (FromDescriptor); any type satisfying this interface can be used.
type Model interface {
	// Descriptor returns the ordered field description of the model.
	// The schema sent to the LLM, the function name and its description
	// are all derived from it. Errors are reported as configuration errors.
	Descriptor() (*schema.Descriptor, error)

	// New builds a validated instance from one decoded tool-call payload.
	// A payload that does not satisfy the model must be reported with a
	// *ValidationError so the pipeline can retry the call.
	New(payload any) (any, error)
}

// Provider describes the wire conventions of one LLM API.
// Implementations are stateless and safe for concurrent use.
type Provider interface {
	// Name identifies the provider in logs, metrics and spans.
	Name() string

	// Path returns the endpoint path the transport posts requests to.
	Path() string

	// FunctionName adapts a generated function name to the provider's
	// naming rules. The result is used both for the tool and for the
	// tool choice.
	FunctionName(name string) string

	// Tool converts a function descriptor into the provider's tool entry.
	Tool(fn FunctionDescriptor) any

	// ToolChoice returns the tool_choice value for mode, or false when the
	// provider does not set one.
	ToolChoice(mode Mode, name string) (any, bool)

	// Prepare applies provider defaults to an augmented request body.
	Prepare(body []byte) ([]byte, error)

	// NewResponse parses a raw response body. A body that is not JSON must
	// be reported as a *transport.ParseError.
	NewResponse(body []byte) (Response, error)
}

// Response is a parsed provider reply.
type Response interface {
	// IsSingle reports whether the reply holds exactly one tool call.
	IsSingle() bool

	// Arguments returns the decoded arguments of every tool call, in order.
	// Provider error envelopes surface here as *ProviderError and malformed
	// arguments as *DecodeError.
	Arguments() ([]any, error)

	// Parse returns the single decoded payload when IsSingle is true, or the
	// ordered list of payloads otherwise.
	Parse() (any, error)
}
