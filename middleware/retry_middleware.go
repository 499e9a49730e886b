package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DANIELAGORA/leiberluna/message"
)

// RetryMiddleware re-runs a call whose response carries CodeUnavailable, waiting
// baseDelay, 2*baseDelay, 4*baseDelay... between attempts. It gives up early when ctx ends.
// CodeCircuitOpen is returned as is.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if resp == nil || resp.Error == nil || resp.Error.Code != message.CodeUnavailable {
					return resp
				}
				log.Debug().
					Int("attempt", i+1).
					Str("method", req.Method).
					Str("id", req.ID).
					Str("error", resp.Error.Message).
					Msg("retrying call")

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return resp
				case <-timer.C:
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}
