// Package correlator matches answers to the requests that are waiting for
// them.
//
// Every outstanding request is named by an Identity, the pair of the
// session that sent it and the handle the backend returned. A waiter
// registers a single-use sink under that identity; the receive path calls
// Deliver, which removes the entry and runs the sink. A waiter that gives up
// calls Cancel, after which a late Deliver for the same identity finds
// nothing and does nothing.
//
//	Register(id, sink) ──► entries[id] = sink
//	Deliver(id, p)     ──► LoadAndDelete(id) → sink(p)   (at most once)
//	Cancel(id)         ──► LoadAndDelete(id)             (sink never runs)
package correlator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDuplicate means an identity was registered while a previous request
// with the same identity was still outstanding. The handle source is broken;
// it is never an expected runtime condition.
var ErrDuplicate = errors.New("correlator: identity already registered")

// Identity names one outstanding request.
type Identity struct {
	Session int32
	Handle  int32
}

func (id Identity) String() string {
	return fmt.Sprintf("%d/%d", id.Session, id.Handle)
}

// Sink receives the payload for one request. It runs on the delivering
// goroutine and must not block.
type Sink[P any] func(payload P)

type entry[P any] struct {
	sink  Sink[P]
	since time.Time
}

// Correlator is a concurrent identity → sink registry. The zero value is not
// usable; call New.
type Correlator[P any] struct {
	entries sync.Map // Identity → *entry[P]
	pending atomic.Int64
	metrics *Metrics
}

// New returns an empty correlator. metrics may be nil.
func New[P any](metrics *Metrics) *Correlator[P] {
	return &Correlator[P]{metrics: metrics}
}

// Register stores sink under id. It never overwrites: a second registration
// of an outstanding id fails with ErrDuplicate and leaves the first in place.
func (c *Correlator[P]) Register(id Identity, sink Sink[P]) error {
	if _, loaded := c.entries.LoadOrStore(id, &entry[P]{sink: sink, since: time.Now()}); loaded {
		c.metrics.duplicate()
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	c.pending.Add(1)
	c.metrics.registered()
	return nil
}

// Deliver removes the entry for id and runs its sink with payload. It reports
// whether a sink ran. An absent id (late, duplicate or cancelled) is a no-op.
func (c *Correlator[P]) Deliver(id Identity, payload P) bool {
	v, ok := c.entries.LoadAndDelete(id)
	if !ok {
		c.metrics.late()
		return false
	}
	e := v.(*entry[P])
	c.pending.Add(-1)
	c.metrics.delivered(time.Since(e.since))
	e.sink(payload)
	return true
}

// Cancel removes the entry for id without running its sink. It reports
// whether an entry was removed.
func (c *Correlator[P]) Cancel(id Identity) bool {
	if _, ok := c.entries.LoadAndDelete(id); !ok {
		return false
	}
	c.pending.Add(-1)
	c.metrics.cancelled()
	return true
}

// Registered reports whether id is outstanding.
func (c *Correlator[P]) Registered(id Identity) bool {
	_, ok := c.entries.Load(id)
	return ok
}

// Len returns the number of outstanding requests.
func (c *Correlator[P]) Len() int {
	return int(max(c.pending.Load(), 0))
}

// CancelAll removes every outstanding entry, passing each identity to fn
// (fn may be nil). It returns the number removed.
func (c *Correlator[P]) CancelAll(fn func(Identity)) int {
	n := 0
	c.entries.Range(func(k, _ any) bool {
		id := k.(Identity)
		if c.Cancel(id) {
			n++
			if fn != nil {
				fn(id)
			}
		}
		return true
	})
	return n
}
