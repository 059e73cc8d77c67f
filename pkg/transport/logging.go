package transport

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WithLogging logs every exchange. Request and response bodies are logged at
// debug level only, so production loggers keep prompts out of their output.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Transport) Transport {
		return Func(func(ctx context.Context, path string, body []byte) ([]byte, error) {
			start := time.Now()
			logger.Debug("transport request",
				zap.String("path", path),
				zap.ByteString("body", body),
			)

			resp, err := next.JSONPost(ctx, path, body)
			if err != nil {
				logger.Warn("transport request failed",
					zap.String("path", path),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
				return resp, err
			}

			logger.Debug("transport response",
				zap.String("path", path),
				zap.Duration("duration", time.Since(start)),
				zap.Int("bytes", len(resp)),
				zap.ByteString("body", resp),
			)
			return resp, nil
		})
	}
}
