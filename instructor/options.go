package instructor

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*Client)

// WithMode sets the tool-choice mode. Default ModeFunction.
func WithMode(m Mode) Option {
	return func(c *Client) { c.mode = m }
}

// WithLogger sets the logger. Default zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRegisterer registers the client's counters on reg. Without it the
// counters are kept but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) { c.registerer = reg }
}

// WithTracerProvider sets the tracer provider. Default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}

// WithSchemaValidation also validates struct-model payloads against the
// compiled JSON Schema before decoding them. Descriptor models always are.
func WithSchemaValidation() Option {
	return func(c *Client) { c.schemaValidation = true }
}

// CallOption configures a single Call.
type CallOption func(*callConfig)

type callConfig struct {
	maxRetries        int
	validationContext map[string]any
}

// WithMaxRetries sets the total number of attempts for the call.
// 0 and 1 both mean a single attempt; negative values count as 0.
func WithMaxRetries(n int) CallOption {
	return func(cc *callConfig) {
		if n < 0 {
			n = 0
		}
		cc.maxRetries = n
	}
}

// WithValidationContext fills %<key>s and %{key} placeholders of the first
// message's content from vc before the request is sent.
func WithValidationContext(vc map[string]any) CallOption {
	return func(cc *callConfig) { cc.validationContext = vc }
}
