// Package middleware wraps the server's envelope handler in onion layers.
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	A.before → B.before → C.before → handler → C.after → B.after → A.after
//
// A handler always returns a Response Envelope; middlewares short-circuit by
// returning an error envelope for the same id.
package middleware

import (
	"context"

	"github.com/DANIELAGORA/leiberluna/message"
)

type HandlerFunc func(ctx context.Context, req *message.Envelope) *message.Envelope

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
