package instructor

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/hamzaessahbaoui/ai-instructor/pkg/transport"
)

const instrumentationName = "github.com/hamzaessahbaoui/ai-instructor/instructor"

// Metrics holds the counters a Client updates.
type Metrics struct {
	Calls    *prometheus.CounterVec
	Attempts *prometheus.CounterVec
	Retries  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "instructor",
				Name:      "calls_total",
				Help:      "Extraction calls by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "instructor",
				Name:      "attempts_total",
				Help:      "Round trips sent to the provider, retries included.",
			},
			[]string{"provider"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "instructor",
				Name:      "retries_total",
				Help:      "Retries by provider and the kind of error that caused them.",
			},
			[]string{"provider", "kind"},
		),
	}
	if reg == nil {
		return m
	}
	m.Calls = register(reg, m.Calls)
	m.Attempts = register(reg, m.Attempts)
	m.Retries = register(reg, m.Retries)
	return m
}

// register registers c, reusing the collector already registered under the
// same name so several clients can share one registry.
func register(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

// errorKind classifies err for metrics labels and log fields.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrValidation):
		return "validation"
	case transport.IsParseError(err):
		return "parse"
	case errors.Is(err, ErrProvider):
		return "provider"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTemplating):
		return "templating"
	default:
		return "transport"
	}
}

func (c *Client) tracer() trace.Tracer {
	return c.tracerProvider.Tracer(instrumentationName)
}
