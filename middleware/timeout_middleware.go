package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DANIELAGORA/leiberluna/message"
)

// TimeOutMiddleware bounds a call to timeout. The handler keeps running in its own
// goroutine after the deadline, but its context is canceled and its late response
// is discarded.
func TimeOutMiddleware(timeout time.Duration, log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Envelope, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- panicResponse(log, req, r)
					}
				}()
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.NewError(req.ID, message.CodeTimeout, "request timed out")
			}
		}
	}
}
