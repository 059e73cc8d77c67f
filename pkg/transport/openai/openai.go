// Package openai provides a transport.Transport backed by the official
// OpenAI Go SDK. Any OpenAI-compatible endpoint works through WithBaseURL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
)

// ChatCompletionsPath is the endpoint the extraction pipeline posts to.
const ChatCompletionsPath = "chat/completions"

// Transport posts raw JSON to the OpenAI API.
type Transport struct {
	client openai.Client
}

// New builds a Transport. An empty apiKey leaves the SDK to read OPENAI_API_KEY,
// an empty baseURL keeps the SDK default.
func New(apiKey, baseURL string, opts ...option.RequestOption) *Transport {
	requestOpts := make([]option.RequestOption, 0, 2+len(opts))
	if baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		requestOpts = append(requestOpts, option.WithAPIKey(apiKey))
	}
	requestOpts = append(requestOpts, opts...)
	return &Transport{client: openai.NewClient(requestOpts...)}
}

// JSONPost sends body to path and returns the response body unmodified.
// Error replies whose body is the provider's {"error": {...}} envelope are
// returned as bodies too, so the caller can read the envelope.
func (t *Transport) JSONPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	var resp *http.Response
	if err := t.client.Post(ctx, path, json.RawMessage(body), &resp); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if envelope, ok := errorEnvelope(apiErr.Response); ok {
				return envelope, nil
			}
		}
		return nil, fmt.Errorf("openai: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read %s response: %w", path, err)
	}
	return out, nil
}

// errorEnvelope returns the body of a failed response when it carries an
// "error" object. The SDK buffers the body of error responses.
func errorEnvelope(resp *http.Response) ([]byte, bool) {
	if resp == nil || resp.Body == nil {
		return nil, false
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil || !gjson.GetBytes(out, "error").IsObject() {
		return nil, false
	}
	return out, true
}
