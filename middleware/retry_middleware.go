package middleware

import (
	"context"
	"errors"
	"syscall"
	"time"

	"go.uber.org/zap"

	"t2rpc/message"
)

// RetryMiddleware re-runs the chain on a retryable error with exponential
// backoff. A retried request is sent again, so the function must tolerate
// duplicates.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
			resp, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !Retryable(err) {
					return resp, err
				}
				delay := baseDelay * time.Duration(1<<i)
				logger.Info("retrying request",
					zap.Int("attempt", i+1),
					zap.Int32("function_no", req.FunctionNo),
					zap.Duration("delay", delay),
					zap.Error(err))

				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return resp, err
				}
				resp, err = next(ctx, req)
			}
			return resp, err
		}
	}
}

// Retryable reports whether err is worth another attempt: timeouts, refused
// connections and errors that say they are temporary.
func Retryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
