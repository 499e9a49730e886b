package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/DANIELAGORA/leiberluna/message"
)

// RecoverMiddleware turns a panic anywhere below it into a CodeInternal response.
func RecoverMiddleware(log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (resp *message.Envelope) {
			defer func() {
				if r := recover(); r != nil {
					resp = panicResponse(log, req, r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func panicResponse(log zerolog.Logger, req *message.Envelope, r any) *message.Envelope {
	log.Error().
		Str("method", req.Method).
		Str("id", req.ID).
		Str("panic", fmt.Sprint(r)).
		Bytes("stack", debug.Stack()).
		Msg("handler panicked")
	return message.NewError(req.ID, message.CodeInternal, "internal error")
}
