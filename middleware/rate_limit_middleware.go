package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/DANIELAGORA/leiberluna/message"
)

// RateLimitMiddleware admits calls through a token bucket of r calls per second
// with the given burst. Calls over the limit are rejected, not queued.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			if !limiter.Allow() {
				return message.NewError(req.ID, message.CodeRateLimited, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
