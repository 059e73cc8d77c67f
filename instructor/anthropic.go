package instructor

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hamzaessahbaoui/ai-instructor/pkg/transport"
)

// DefaultAnthropicMaxTokens is sent when the request does not set max_tokens,
// which the messages API requires.
const DefaultAnthropicMaxTokens = 1024

var errInvalidJSON = errors.New("response body is not valid JSON")

// --- Anthropic Provider ---

type anthropicProvider struct{}

// Anthropic returns the provider for the Anthropic messages API.
func Anthropic() Provider { return anthropicProvider{} }

func (anthropicProvider) Name() string { return "anthropic" }

func (anthropicProvider) Path() string { return "v1/messages" }

func (anthropicProvider) FunctionName(name string) string { return name }

func (anthropicProvider) Tool(fn FunctionDescriptor) any {
	return AnthropicTool{
		Name:        fn.Function.Name,
		Description: fn.Function.Description,
		InputSchema: fn.Function.Parameters,
	}
}

// ToolChoice is never set; the model is steered by the tool description alone.
func (anthropicProvider) ToolChoice(Mode, string) (any, bool) { return nil, false }

func (anthropicProvider) Prepare(body []byte) ([]byte, error) {
	if gjson.GetBytes(body, "max_tokens").Exists() {
		return body, nil
	}
	return sjson.SetBytes(body, "max_tokens", DefaultAnthropicMaxTokens)
}

func (anthropicProvider) NewResponse(body []byte) (Response, error) {
	return NewAnthropicResponse(body)
}

// --- Anthropic Response ---

// AnthropicResponse reads tool_use blocks from the content array. Their
// input is already a decoded object.
type AnthropicResponse struct {
	body gjson.Result
}

// NewAnthropicResponse parses a messages API body.
func NewAnthropicResponse(body []byte) (*AnthropicResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, transport.NewParseError(body, errInvalidJSON)
	}
	return &AnthropicResponse{body: gjson.ParseBytes(body)}, nil
}

// Err returns the provider error carried by an error envelope, if any.
func (r *AnthropicResponse) Err() error {
	if r.body.Get("type").String() != "error" {
		return nil
	}
	return &ProviderError{
		Type:    r.body.Get("error.type").String(),
		Message: r.body.Get("error.message").String(),
	}
}

func (r *AnthropicResponse) toolUses() []gjson.Result {
	content := r.body.Get("content")
	if !content.IsArray() {
		return nil
	}
	var uses []gjson.Result
	content.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "tool_use" {
			uses = append(uses, block)
		}
		return true
	})
	return uses
}

func (r *AnthropicResponse) IsSingle() bool { return len(r.toolUses()) == 1 }

func (r *AnthropicResponse) Arguments() ([]any, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	uses := r.toolUses()
	out := make([]any, 0, len(uses))
	for _, use := range uses {
		input := use.Get("input")
		// Some compatible gateways send input as an encoded string.
		if input.Type == gjson.String {
			var v any
			if err := json.Unmarshal([]byte(input.Str), &v); err != nil {
				return nil, &DecodeError{Arguments: input.Str, Err: err}
			}
			out = append(out, v)
			continue
		}
		out = append(out, input.Value())
	}
	return out, nil
}

func (r *AnthropicResponse) Parse() (any, error) {
	return parseArguments(r)
}
