package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"t2rpc/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.Int32("function_no", req.FunctionNo),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				logger.Warn("request failed", append(fields, zap.Error(err))...)
			case resp != nil && resp.Failed():
				logger.Info("request answered with error", append(fields,
					zap.Int32("return_code", resp.ReturnCode),
					zap.Int32("error_no", resp.ErrorNo),
					zap.String("error_info", resp.ErrorInfo))...)
			default:
				logger.Debug("request done", fields...)
			}
			return resp, err
		}
	}
}
