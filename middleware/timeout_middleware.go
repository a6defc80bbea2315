package middleware

import (
	"context"
	"fmt"
	"time"

	"t2rpc/message"
)

// TimeOutMiddleware bounds the rest of the chain. The error it returns on
// expiry matches both ErrTimeout and context.DeadlineExceeded.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp *message.Envelope
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: function %d: %w", ErrTimeout, req.FunctionNo, ctx.Err())
			}
		}
	}
}
