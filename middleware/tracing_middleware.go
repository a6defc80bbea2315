package middleware

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"t2rpc/message"
)

// TracingMiddleware wraps each request in an OpenTelemetry span named after
// its function number. kind is trace.SpanKindClient on the sending side and
// trace.SpanKindServer in the gateway.
func TracingMiddleware(tracerName string, kind trace.SpanKind) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
			tracer := otel.Tracer(tracerName)
			ctx, span := tracer.Start(ctx, "t2.function "+strconv.Itoa(int(req.FunctionNo)), trace.WithSpanKind(kind))
			defer span.End()

			span.SetAttributes(
				attribute.Int("t2.function_no", int(req.FunctionNo)),
				attribute.Int("t2.system_no", int(req.SystemNo)),
				attribute.Int("t2.branch_no", int(req.BranchNo)),
			)

			resp, err := next(ctx, req)
			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case resp != nil && resp.Failed():
				span.SetAttributes(
					attribute.Int("t2.return_code", int(resp.ReturnCode)),
					attribute.Int("t2.error_no", int(resp.ErrorNo)),
				)
				span.SetStatus(codes.Error, resp.ErrorInfo)
			}
			return resp, err
		}
	}
}
