package instructor

import (
	"encoding/json"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/hamzaessahbaoui/ai-instructor/pkg/schema"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/transport"
)

// --- OpenAI Provider ---

type openAIProvider struct{}

// OpenAI returns the provider for the OpenAI chat completions API and
// compatible endpoints.
func OpenAI() Provider { return openAIProvider{} }

func (openAIProvider) Name() string { return "openai" }

func (openAIProvider) Path() string { return "chat/completions" }

// FunctionName titleizes the name into an identifier: "user_detail" and
// "UserDetail" both become "UserDetail".
func (openAIProvider) FunctionName(name string) string {
	return strings.ReplaceAll(schema.Titleize(name), " ", "")
}

func (openAIProvider) Tool(fn FunctionDescriptor) any { return fn }

func (openAIProvider) ToolChoice(mode Mode, name string) (any, bool) {
	switch mode {
	case ModeAuto:
		return "auto", true
	case ModeRequired:
		return "required", true
	case ModeNone:
		return "none", true
	default:
		return goopenai.ToolChoice{
			Type:     goopenai.ToolTypeFunction,
			Function: goopenai.ToolFunction{Name: name},
		}, true
	}
}

func (openAIProvider) Prepare(body []byte) ([]byte, error) { return body, nil }

func (openAIProvider) NewResponse(body []byte) (Response, error) {
	return NewOpenAIResponse(body)
}

// --- OpenAI Response ---

// OpenAIResponse reads tool calls from choices[0].message.tool_calls.
// Each call's arguments are a JSON-encoded string.
type OpenAIResponse struct {
	completion goopenai.ChatCompletionResponse
	err        *ProviderError
}

// NewOpenAIResponse parses a chat completion body.
func NewOpenAIResponse(body []byte) (*OpenAIResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, transport.NewParseError(body, errInvalidJSON)
	}
	r := &OpenAIResponse{}
	if e := gjson.GetBytes(body, "error"); e.IsObject() {
		r.err = &ProviderError{Type: e.Get("type").String(), Message: e.Get("message").String()}
		return r, nil
	}
	if err := json.Unmarshal(body, &r.completion); err != nil {
		return nil, transport.NewParseError(body, err)
	}
	return r, nil
}

// ToolCalls returns the tool calls of the first choice.
func (r *OpenAIResponse) ToolCalls() []goopenai.ToolCall {
	if len(r.completion.Choices) == 0 {
		return nil
	}
	return r.completion.Choices[0].Message.ToolCalls
}

// FunctionResponses returns the function part of every tool call.
func (r *OpenAIResponse) FunctionResponses() []goopenai.FunctionCall {
	calls := r.ToolCalls()
	if calls == nil {
		return nil
	}
	out := make([]goopenai.FunctionCall, len(calls))
	for i, tc := range calls {
		out[i] = tc.Function
	}
	return out
}

// ByFunctionName returns the raw, undecoded arguments of the first call to name.
func (r *OpenAIResponse) ByFunctionName(name string) (string, bool) {
	for _, fc := range r.FunctionResponses() {
		if fc.Name == name {
			return fc.Arguments, true
		}
	}
	return "", false
}

func (r *OpenAIResponse) IsSingle() bool { return len(r.ToolCalls()) == 1 }

func (r *OpenAIResponse) Arguments() ([]any, error) {
	if r.err != nil {
		return nil, r.err
	}
	fns := r.FunctionResponses()
	out := make([]any, 0, len(fns))
	for _, fc := range fns {
		var v any
		if err := json.Unmarshal([]byte(fc.Arguments), &v); err != nil {
			return nil, &DecodeError{Arguments: fc.Arguments, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *OpenAIResponse) Parse() (any, error) {
	return parseArguments(r)
}

// parseArguments is the shared Parse: one payload when single, the list otherwise.
func parseArguments(r Response) (any, error) {
	args, err := r.Arguments()
	if err != nil {
		return nil, err
	}
	if r.IsSingle() {
		return args[0], nil
	}
	return args, nil
}
