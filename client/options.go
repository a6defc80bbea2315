package client

import (
	"time"

	"go.uber.org/zap"

	"t2rpc/correlator"
	"t2rpc/middleware"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

type options struct {
	logger         *zap.Logger
	timeout        time.Duration
	connectTimeout time.Duration
	middlewares    []middleware.Middleware
	metrics        *correlator.Metrics
	gbk            bool
}

type Option func(*options)

func defaultOptions() options {
	return options{
		logger:         zap.NewNop(),
		timeout:        defaultTimeout,
		connectTimeout: defaultConnectTimeout,
		gbk:            true,
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTimeout sets the deadline applied to SendAndWait and Call when the
// caller's context has none. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithConnectTimeout bounds Connect when its context has no deadline.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithMiddleware wraps SendAndWait and Call. Middlewares run in the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

func WithMetrics(m *correlator.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithGBK controls whether Call stores JSON strings as GBK raw fields (the
// default) or as UTF-8 string fields.
func WithGBK(on bool) Option {
	return func(o *options) { o.gbk = on }
}
