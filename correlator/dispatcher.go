package correlator

import (
	"sync"
)

// Dispatcher moves events off the goroutine that produced them. Enqueue
// never blocks; a single goroutine drains the queue in order and hands each
// event to the handler.
//
// The queue is unbounded: a producer that cannot block (a library callback)
// must not be back-pressured, so memory is the only limit.
type Dispatcher[E any] struct {
	handler func(E)

	mu     sync.Mutex
	queue  []E
	closed bool
	signal chan struct{} // cap 1, "queue is non-empty"
	done   chan struct{}
}

// NewDispatcher starts the draining goroutine.
func NewDispatcher[E any](handler func(E)) *Dispatcher[E] {
	d := &Dispatcher[E]{
		handler: handler,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue appends ev. It reports false, and drops nothing into the queue,
// once Close has been called.
func (d *Dispatcher[E]) Enqueue(ev E) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, ev)
	// under mu so Close cannot close signal in between
	select {
	case d.signal <- struct{}{}:
	default:
	}
	d.mu.Unlock()
	return true
}

// Len returns the number of queued events.
func (d *Dispatcher[E]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops accepting events, waits until everything already queued has
// been handled, then returns. Close is idempotent.
func (d *Dispatcher[E]) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.signal)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher[E]) run() {
	defer close(d.done)
	for range d.signal {
		d.drain()
	}
	// signal is closed; pick up whatever arrived before Close
	d.drain()
}

func (d *Dispatcher[E]) drain() {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			d.handler(ev)
		}
	}
}
