// Package middleware wraps request handling in an onion of cross-cutting
// steps. The same chain type serves the client send pipeline, where the
// innermost handler sends and waits for the answer, and the gateway, where
// it dispatches to a business function.
package middleware

import (
	"context"
	"errors"

	"t2rpc/message"
)

var (
	ErrTimeout     = errors.New("middleware: request timed out")
	ErrRateLimited = errors.New("middleware: rate limit exceeded")
)

// HandlerFunc turns a request into its answer. A returned error is a local
// failure; a business failure travels inside the answer.
type HandlerFunc func(ctx context.Context, req *message.Envelope) (*message.Envelope, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
//
//	Chain(A, B, C)(h) == A(B(C(h)))
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
