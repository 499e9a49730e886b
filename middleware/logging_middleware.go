package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DANIELAGORA/leiberluna/message"
)

// LoggingMiddleware records one line per call: method, id, duration and, on
// failure, the error code.
func LoggingMiddleware(log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			start := time.Now()
			resp := next(ctx, req)
			duration := time.Since(start)

			if resp != nil && resp.Error != nil {
				log.Warn().
					Str("method", req.Method).
					Str("id", req.ID).
					Dur("duration", duration).
					Int("code", resp.Error.Code).
					Str("error", resp.Error.Message).
					Msg("call failed")
				return resp
			}
			log.Info().
				Str("method", req.Method).
				Str("id", req.ID).
				Dur("duration", duration).
				Msg("call served")
			return resp
		}
	}
}
