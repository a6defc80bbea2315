// Package client is the caller-facing side of the runtime: it sends business
// messages through a backend connection and hands each caller the answer
// that carries its handle.
//
//	Send ──► backend.SendBizMsg ──► handle ──► correlator.Register((session, handle), sink)
//	backend goroutine ──► trampoline.OnReceivedBizMsg ──► Dispatcher.Enqueue
//	dispatcher goroutine ──► correlator.Deliver ──► sink ──► Pending.Wait returns
//
// A Pending that gives up cancels its entry before it reports the failure,
// so an answer that arrives afterwards is dropped.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"t2rpc/backend"
	"t2rpc/config"
	"t2rpc/correlator"
	"t2rpc/middleware"
)

var (
	ErrConnect      = errors.New("client: connect failed")
	ErrNotConnected = errors.New("client: not connected")
	ErrClosed       = errors.New("client: closed")
	ErrTimeout      = errors.New("client: request timed out")
	ErrCancelled    = errors.New("client: request cancelled")
	ErrSend         = errors.New("client: send failed")
)

// SendError reports a message the backend refused to send. Nothing was
// registered for it.
type SendError struct {
	Code int32
	Text string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("client: send failed (%d): %s", e.Code, e.Text)
}

func (e *SendError) Is(target error) bool { return target == ErrSend }

// Temporary reports whether another attempt may succeed.
func (e *SendError) Temporary() bool {
	return e.Code == backend.CodeSendFailed || e.Code == backend.CodeNotConnected
}

// Runtime is an initialised backend. Clients created from the same runtime
// get distinct session numbers, so their identities never collide.
type Runtime struct {
	lib      backend.Library
	sessions atomic.Int32
}

// Init wraps a loaded backend library.
func Init(lib backend.Library) (*Runtime, error) {
	if lib == nil {
		return nil, errors.New("client: nil backend library")
	}
	return &Runtime{lib: lib}, nil
}

// Version returns the backend library version.
func (rt *Runtime) Version() int32 { return rt.lib.Version() }

// Client is one session over one backend connection. It is safe for
// concurrent use.
type Client struct {
	rt      *Runtime
	session int32
	opts    options
	logger  *zap.Logger

	conn    *backend.Ref[backend.Connection]
	pending *correlator.Correlator[*backend.Ref[backend.Message]]
	events  *correlator.Dispatcher[delivery]
	handler middleware.HandlerFunc

	// Send holds the read side from SendBizMsg until the handle is
	// registered; the dispatcher takes the write side before every delivery.
	// An answer that beats its registration therefore waits instead of being
	// dropped as late.
	gate sync.RWMutex

	closed atomic.Bool
	done   chan struct{}
}

// NewClient creates a connection configured from cfg and installs the
// callback table. Call Connect before sending.
func (rt *Runtime) NewClient(cfg config.Store, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := rt.lib.NewConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("client: new connection: %w", err)
	}

	session := rt.sessions.Add(1)
	c := &Client{
		rt:      rt,
		session: session,
		opts:    o,
		logger:  o.logger.With(zap.Int32("session", session)),
		conn:    backend.Own(conn),
		pending: correlator.New[*backend.Ref[backend.Message]](o.metrics),
		done:    make(chan struct{}),
	}
	c.events = correlator.NewDispatcher(c.dispatch)
	c.handler = middleware.Chain(o.middlewares...)(c.roundTrip)

	tr := &trampoline{session: session, events: c.events, logger: c.logger}
	if rc := conn.Create(tr); rc != backend.CodeOK {
		c.events.Close()
		c.conn.Release()
		return nil, fmt.Errorf("client: create connection: %s", conn.ErrorMessage(rc))
	}
	return c, nil
}

// Session returns the session number of this client.
func (c *Client) Session() int32 { return c.session }

func (c *Client) connection() (backend.Connection, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	conn, err := c.conn.Get()
	if err != nil {
		return nil, ErrClosed
	}
	return conn, nil
}

// Connect dials the gateway. The context deadline, or the connect timeout
// option when there is none, bounds the attempt.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	timeout := c.opts.connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return fmt.Errorf("%w: %w", ErrConnect, context.DeadlineExceeded)
		}
	}
	if rc := conn.Connect(timeout); rc != backend.CodeOK {
		return fmt.Errorf("%w: %s", ErrConnect, conn.ErrorMessage(rc))
	}
	c.logger.Info("connected", zap.String("addr", conn.ServerAddress()))
	return nil
}

// Connected reports whether the connection is registered with a gateway.
func (c *Client) Connected() bool {
	conn, err := c.connection()
	return err == nil && conn.Status().Has(backend.StatusRegistered)
}

// Status returns the backend connection status.
func (c *Client) Status() backend.Status {
	conn, err := c.connection()
	if err != nil {
		return backend.StatusDisconnected
	}
	return conn.Status()
}

// ServerAddress returns the address of the connected gateway.
func (c *Client) ServerAddress() string {
	conn, err := c.connection()
	if err != nil {
		return ""
	}
	return conn.ServerAddress()
}

// Outstanding returns the number of requests waiting for an answer.
func (c *Client) Outstanding() int { return c.pending.Len() }

// dispatch runs on the dispatcher goroutine, one delivery at a time.
func (c *Client) dispatch(d delivery) {
	if c.closed.Load() {
		d.ref.Release()
		return
	}
	// wait out sends that hold a handle but have not registered it yet
	c.gate.Lock()
	c.gate.Unlock()

	if !c.pending.Deliver(d.id, d.ref) {
		c.logger.Debug("drop late answer", zap.Int32("handle", d.id.Handle))
		d.ref.Release()
	}
}

// Close disconnects, fails every outstanding request with ErrClosed and
// releases the connection. Answers already queued are dropped.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	if conn, err := c.conn.Get(); err == nil {
		conn.Close()
	}
	if n := c.pending.CancelAll(nil); n > 0 {
		c.logger.Warn("closed with outstanding requests", zap.Int("count", n))
	}
	c.events.Close()
	c.conn.Release()
	return nil
}
