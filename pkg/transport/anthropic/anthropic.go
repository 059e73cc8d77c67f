// Package anthropic provides a transport.Transport backed by the official
// Anthropic Go SDK. The SDK handles authentication, base URL, SDK-level
// retries on 429/5xx. Bodies, error envelopes included, are passed through raw.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

const (
	// MessagesPath is the endpoint the extraction pipeline posts to.
	MessagesPath = "v1/messages"

	betaHeader = "anthropic-beta"
	// ToolsBeta enables tool use on API versions that still gate it.
	ToolsBeta = "tools-2024-04-04"
)

// Transport posts raw JSON to the Anthropic API.
type Transport struct {
	client *anthropic.Client
}

// New builds a Transport. The API key falls back to ANTHROPIC_API_KEY when
// empty, as the SDK does.
func New(apiKey string, opts ...option.RequestOption) *Transport {
	base := []option.RequestOption{option.WithHeader(betaHeader, ToolsBeta)}
	if apiKey != "" {
		base = append(base, option.WithAPIKey(apiKey))
	}
	return &Transport{client: anthropic.NewClient(append(base, opts...)...)}
}

// JSONPost sends body to path and returns the response body unmodified.
// Error replies whose body is the provider's {"error": {...}} envelope are
// returned as bodies too, so the caller can read the envelope.
func (t *Transport) JSONPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	var resp *http.Response
	if err := t.client.Post(ctx, path, json.RawMessage(body), &resp); err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			if envelope, ok := errorEnvelope(apiErr.Response); ok {
				return envelope, nil
			}
		}
		return nil, fmt.Errorf("anthropic: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: read %s response: %w", path, err)
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
