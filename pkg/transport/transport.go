// Package transport defines the "send JSON, get JSON" contract the extraction
// pipeline talks to, plus small adapters around it.
//
// A Transport knows how to reach one provider: it owns authentication, base
// URL and headers. The pipeline only hands it an endpoint path and a request
// body and expects the raw response body back.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Transport posts a JSON body to an endpoint path and returns the raw response body.
type Transport interface {
	JSONPost(ctx context.Context, path string, body []byte) ([]byte, error)
}

// Func adapts a plain function to the Transport interface. It is the usual
// way to stub a provider in tests.
type Func func(ctx context.Context, path string, body []byte) ([]byte, error)

// JSONPost calls f.
func (f Func) JSONPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	return f(ctx, path, body)
}

// Middleware wraps a Transport with extra behaviour.
type Middleware func(Transport) Transport

// Chain applies middlewares so that the first one is the outermost.
func Chain(t Transport, mws ...Middleware) Transport {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("malformed provider response")

// ParseError reports a response body that could not be read as JSON.
// The pipeline treats it as transient and retries the round trip.
type ParseError struct {
	Body []byte
	Err  error
}

// NewParseError wraps err as a ParseError for the given body.
func NewParseError(body []byte, err error) *ParseError {
	return &ParseError{Body: body, Err: err}
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return ErrParse.Error()
	}
	return fmt.Sprintf("%s: %v", ErrParse, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// IsParseError returns true if err is or wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
