package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"t2rpc/backend"
	"t2rpc/correlator"
	"t2rpc/message"
)

// Pending is the answer to one sent request.
type Pending struct {
	c    *Client
	id   correlator.Identity
	sent time.Time
	done chan *backend.Ref[backend.Message] // capacity 1, written at most once

	cancelled atomic.Bool
	abandoned atomic.Bool // Wait returned without taking the answer
}

// Identity returns the (session, handle) pair the answer is matched on.
func (p *Pending) Identity() correlator.Identity { return p.id }

func (p *Pending) resolve(ref *backend.Ref[backend.Message]) {
	p.done <- ref
	if p.abandoned.Load() {
		p.drain()
	}
}

// abandon releases an answer that arrived, or arrives later, for a Wait that
// has already given up. Whichever of abandon and resolve runs second drains.
func (p *Pending) abandon() {
	p.abandoned.Store(true)
	p.drain()
}

func (p *Pending) drain() {
	select {
	case ref := <-p.done:
		ref.Release()
	default:
	}
}

// Send hands env to the backend and registers for its answer. A copy of env
// is sent; the caller keeps ownership of env.
//
// A non-positive backend handle fails with a *SendError and registers
// nothing.
func (c *Client) Send(ctx context.Context, env *message.Envelope) (*Pending, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrSend)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !conn.Status().Has(backend.StatusRegistered) {
		return nil, ErrNotConnected
	}

	msg := backend.Own(c.rt.lib.NewMessage())
	defer msg.Release()
	m, _ := msg.Get()
	*m.Envelope() = *env.Clone()

	p := &Pending{c: c, done: make(chan *backend.Ref[backend.Message], 1)}

	c.gate.RLock()
	handle := conn.SendBizMsg(m, true)
	if handle <= 0 {
		c.gate.RUnlock()
		err := &SendError{Code: handle, Text: conn.ErrorMessage(handle)}
		c.logger.Warn("send refused", zap.Int32("function_no", env.FunctionNo), zap.Error(err))
		return nil, err
	}
	p.id = correlator.Identity{Session: c.session, Handle: handle}
	p.sent = time.Now()
	err = c.pending.Register(p.id, p.resolve)
	c.gate.RUnlock()

	if err != nil {
		// a handle reused while its request is outstanding: the backend is broken
		c.logger.Error("duplicate request identity",
			zap.Int32("handle", handle),
			zap.Int32("function_no", env.FunctionNo),
			zap.Error(err))
		return nil, err
	}
	if c.closed.Load() {
		c.pending.Cancel(p.id)
		return nil, ErrClosed
	}
	return p, nil
}

// Wait blocks until the answer arrives, ctx is done or the client closes.
// On the latter two the registration is cancelled before the error is
// returned; an answer that arrives later is dropped.
//
// The answer is returned as a private copy. An in-band failure
// (Envelope.Failed) is an answer, not an error.
func (p *Pending) Wait(ctx context.Context) (*message.Envelope, error) {
	if p.cancelled.Load() {
		return nil, ErrCancelled
	}
	select {
	case ref := <-p.done:
		return p.take(ref)
	case <-ctx.Done():
		if p.Cancel() {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s after %s: %w", ErrTimeout, p.id, time.Since(p.sent).Round(time.Millisecond), ctx.Err())
			}
			return nil, fmt.Errorf("client: request %s abandoned: %w", p.id, ctx.Err())
		}
	case <-p.c.done:
		if p.Cancel() {
			return nil, ErrClosed
		}
	}
	if p.cancelled.Load() {
		return nil, ErrCancelled
	}

	// lost the race to Deliver (the sink has run or is about to) or to Close
	select {
	case ref := <-p.done:
		return p.take(ref)
	case <-p.c.done:
		p.abandon()
		return nil, ErrClosed
	}
}

// Cancel abandons the request. It reports whether the answer was still
// outstanding; a later Wait fails with ErrCancelled.
func (p *Pending) Cancel() bool {
	if !p.c.pending.Cancel(p.id) {
		return false
	}
	p.cancelled.Store(true)
	return true
}

func (p *Pending) take(ref *backend.Ref[backend.Message]) (*message.Envelope, error) {
	defer ref.Release()
	msg, err := ref.Get()
	if err != nil {
		return nil, err
	}
	return msg.Envelope().Clone(), nil
}

// SendAndWait sends env through the middleware chain and waits for the
// answer. A non-positive timeout uses the client's default; an earlier
// context deadline wins.
func (c *Client) SendAndWait(ctx context.Context, env *message.Envelope, timeout time.Duration) (*message.Envelope, error) {
	if timeout <= 0 {
		timeout = c.opts.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.handler(ctx, env)
}

// roundTrip is the innermost handler of the chain.
func (c *Client) roundTrip(ctx context.Context, env *message.Envelope) (*message.Envelope, error) {
	p, err := c.Send(ctx, env)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}
