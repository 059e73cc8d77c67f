package instructor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hamzaessahbaoui/ai-instructor/pkg/schema"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/transport"
)

// --- Client Struct and Methods ---

// Client runs the extraction pipeline against one provider.
// A Client is immutable once built and safe for concurrent use: every call
// keeps its own collection flag and attempt counter.
type Client struct {
	transport        transport.Transport
	provider         Provider
	mode             Mode
	logger           *zap.Logger
	registerer       prometheus.Registerer
	metrics          *Metrics
	tracerProvider   trace.TracerProvider
	schemaValidation bool
}

// New creates a Client posting through t with the conventions of p.
//
// Example:
//
//	tr := anthropictransport.New(apiKey)
//	client := instructor.New(tr, instructor.Anthropic(), instructor.WithLogger(logger))
//	user, err := instructor.Extract[UserDetail](ctx, client, params)
func New(t transport.Transport, p Provider, opts ...Option) *Client {
	c := &Client{
		transport:      t,
		provider:       p,
		mode:           ModeFunction,
		logger:         zap.NewNop(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics = newMetrics(c.registerer)
	c.logger = c.logger.With(zap.String("provider", p.Name()))
	return c
}

// NewOpenAI creates a Client for the OpenAI chat completions API.
func NewOpenAI(t transport.Transport, opts ...Option) *Client {
	return New(t, OpenAI(), opts...)
}

// NewAnthropic creates a Client for the Anthropic messages API.
func NewAnthropic(t transport.Transport, opts ...Option) *Client {
	return New(t, Anthropic(), opts...)
}

// Mode returns the client's tool-choice mode.
func (c *Client) Mode() Mode { return c.mode }

// Provider returns the client's provider.
func (c *Client) Provider() Provider { return c.provider }

// Metrics returns the client's counters.
func (c *Client) Metrics() *Metrics { return c.metrics }

// Call sends params (any JSON object with a "messages" array, or its raw
// bytes) with rm's function injected as a tool, and returns the validated
// instance, or a []any of instances when rm is a collection.
//
// With a nil rm the request is sent as is and the raw response body is
// returned as json.RawMessage.
//
// Parameters:
//   - ctx: Cancels the current request and stops further attempts
//   - params: The request body; it is copied, never modified
//   - rm: The target model, from Single or Many; nil for a pass-through call
//   - opts: Per-call options such as WithMaxRetries and WithValidationContext
//
// Behavior:
//   - The validation context, when set, is formatted into the first message
//   - Decode errors, validation errors and malformed response bodies are
//     retried until WithMaxRetries attempts are spent
//   - Provider error envelopes, transport failures and configuration errors
//     are returned at once
//   - Each call and each attempt is logged, counted and traced
//
// Returns:
//   - *T for struct models, map[string]any for descriptor models, []any of
//     either for collections
//   - The last attempt's error, unwrapped, when every attempt failed
//
// Example:
//
//	client := instructor.NewOpenAI(openaitransport.New(apiKey, ""))
//	out, err := client.Call(ctx, params, instructor.Single(instructor.For[models.UserDetail]()),
//		instructor.WithMaxRetries(3))
func (c *Client) Call(ctx context.Context, params any, rm *ResponseModel, opts ...CallOption) (any, error) {
	var cfg callConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	callID := uuid.NewString()
	logger := c.logger.With(zap.String("call_id", callID))
	ctx, span := c.tracer().Start(ctx, "instructor.call", trace.WithAttributes(
		attribute.String("instructor.call_id", callID),
		attribute.String("instructor.provider", c.provider.Name()),
		attribute.String("instructor.mode", c.mode.String()),
		attribute.Int("instructor.max_retries", cfg.maxRetries),
		attribute.Bool("instructor.iterable", rm != nil && rm.iterable),
	))
	defer span.End()

	out, err := c.call(ctx, logger, params, rm, cfg)

	outcome := "success"
	if err != nil {
		outcome = errorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("extraction failed", zap.String("kind", outcome), zap.Error(err))
	}
	c.metrics.Calls.WithLabelValues(c.provider.Name(), outcome).Inc()
	return out, err
}

func (c *Client) call(ctx context.Context, logger *zap.Logger, params any, rm *ResponseModel, cfg callConfig) (any, error) {
	body, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	if rm == nil {
		c.metrics.Attempts.WithLabelValues(c.provider.Name()).Inc()
		resp, err := c.transport.JSONPost(ctx, c.provider.Path(), body)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(resp), nil
	}
	if rm.model == nil {
		return nil, &ConfigurationError{Message: "response model is empty"}
	}

	onRetry := func(attempt int, err error) {
		kind := errorKind(err)
		c.metrics.Retries.WithLabelValues(c.provider.Name(), kind).Inc()
		logger.Info("retrying extraction",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", cfg.maxRetries),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
	return withRetries(ctx, cfg.maxRetries, onRetry, func(attempt int) (any, error) {
		return c.attempt(ctx, logger, attempt, body, rm, cfg)
	})
}

// attempt runs one full round trip: build the function, template and augment
// the request, send it, then extract and validate the result.
func (c *Client) attempt(ctx context.Context, logger *zap.Logger, attempt int, body []byte, rm *ResponseModel, cfg callConfig) (_ any, err error) {
	ctx, span := c.tracer().Start(ctx, "instructor.attempt", trace.WithAttributes(
		attribute.Int("instructor.attempt", attempt),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	iterable := rm.iterable
	d, err := rm.model.Descriptor()
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	fn, err := BuildFunction(d)
	if err != nil {
		return nil, err
	}
	fn.Function.Name = c.provider.FunctionName(fn.Function.Name)
	span.SetAttributes(attribute.String("instructor.function", fn.Function.Name))

	req, err := c.prepare(body, fn, cfg.validationContext)
	if err != nil {
		return nil, err
	}

	logger.Debug("sending extraction request",
		zap.Int("attempt", attempt),
		zap.String("function", fn.Function.Name),
		zap.Bool("iterable", iterable),
	)
	c.metrics.Attempts.WithLabelValues(c.provider.Name()).Inc()
	raw, err := c.transport.JSONPost(ctx, c.provider.Path(), req)
	if err != nil {
		return nil, err
	}

	resp, err := c.provider.NewResponse(raw)
	if err != nil {
		return nil, err
	}
	args, err := resp.Arguments()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("instructor.tool_calls", len(args)))

	if iterable {
		out := make([]any, 0, len(args))
		for i, payload := range args {
			v, err := c.instantiate(rm.model, d, payload)
			if err != nil {
				return nil, newValidationError(i, err)
			}
			out = append(out, v)
		}
		return out, nil
	}

	if len(args) == 0 {
		return nil, &ValidationError{Index: -1, Message: fmt.Sprintf("the response has no call to %s", fn.Function.Name)}
	}
	v, err := c.instantiate(rm.model, d, args[0])
	if err != nil {
		return nil, newValidationError(-1, err)
	}
	return v, nil
}

// prepare templates the messages, injects the tool and the tool choice, and
// applies provider defaults. body itself is never modified.
func (c *Client) prepare(body []byte, fn FunctionDescriptor, vc map[string]any) ([]byte, error) {
	req := make([]byte, len(body))
	copy(req, body)

	req, err := applyValidationContext(req, vc)
	if err != nil {
		return nil, err
	}
	tool, err := json.Marshal([]any{c.provider.Tool(fn)})
	if err != nil {
		return nil, &ConfigurationError{Message: "cannot encode tool", Err: err}
	}
	if req, err = sjson.SetRawBytes(req, "tools", tool); err != nil {
		return nil, &ConfigurationError{Message: "cannot set tools", Err: err}
	}
	if choice, ok := c.provider.ToolChoice(c.mode, fn.Function.Name); ok {
		if req, err = sjson.SetBytes(req, "tool_choice", choice); err != nil {
			return nil, &ConfigurationError{Message: "cannot set tool_choice", Err: err}
		}
	}
	req, err = c.provider.Prepare(req)
	if err != nil {
		return nil, &ConfigurationError{Message: "cannot apply provider defaults", Err: err}
	}
	return req, nil
}

func (c *Client) instantiate(m Model, d *schema.Descriptor, payload any) (any, error) {
	if c.schemaValidation {
		if err := validateAgainstSchema(m, d, payload); err != nil {
			return nil, err
		}
	}
	return m.New(payload)
}

// marshalParams returns params as a JSON object. Raw bytes are used as is.
func marshalParams(params any) ([]byte, error) {
	var body []byte
	switch p := params.(type) {
	case nil:
		return nil, &ConfigurationError{Message: "params are required"}
	case []byte:
		body = p
	case json.RawMessage:
		body = p
	case string:
		body = []byte(p)
	default:
		b, err := json.Marshal(params)
		if err != nil {
			return nil, &ConfigurationError{Message: "cannot encode params", Err: err}
		}
		body = b
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, &ConfigurationError{Message: "params must be a JSON object"}
	}
	return body, nil
}

// withRetries runs body until it succeeds, fails with an error that is not
// retryable, or has run max(1, maxRetries) times. The last error is returned
// as is.
func withRetries(ctx context.Context, maxRetries int, onRetry func(attempt int, err error), body func(attempt int) (any, error)) (any, error) {
	attempts := 0
	for {
		out, err := body(attempts + 1)
		if err == nil {
			return out, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		attempts++
		if attempts >= maxRetries {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if onRetry != nil {
			onRetry(attempts, err)
		}
	}
}

// --- Typed Helpers ---

// Extract runs a single-instance call for the struct type T and returns the
// validated *T. It behaves like Call with Single(For[T]()); a reply without a
// tool call fails validation and is retried.
//
// Example:
//
//	user, err := instructor.Extract[models.UserDetail](ctx, client, map[string]any{
//		"model":    "gpt-4o",
//		"messages": []any{map[string]any{"role": "user", "content": "Jason is 25 years old"}},
//	})
func Extract[T any](ctx context.Context, c *Client, params any, opts ...CallOption) (*T, error) {
	out, err := c.Call(ctx, params, Single(For[T]()), opts...)
	if err != nil {
		return nil, err
	}
	v, ok := out.(*T)
	if !ok {
		return nil, fmt.Errorf("instructor: unexpected result type %T", out)
	}
	return v, nil
}

// ExtractMany runs a collection call for the struct type T, one *T per tool
// call in reply order. A reply with no tool calls yields an empty slice.
func ExtractMany[T any](ctx context.Context, c *Client, params any, opts ...CallOption) ([]*T, error) {
	out, err := c.Call(ctx, params, Many(For[T]()), opts...)
	if err != nil {
		return nil, err
	}
	items, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("instructor: unexpected result type %T", out)
	}
	result := make([]*T, 0, len(items))
	for _, item := range items {
		v, ok := item.(*T)
		if !ok {
			return nil, fmt.Errorf("instructor: unexpected item type %T", item)
		}
		result = append(result, v)
	}
	return result, nil
}
