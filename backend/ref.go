package backend

import (
	"errors"
	"sync/atomic"
)

var ErrReleased = errors.New("backend: reference already released or moved")

// Ref owns exactly one library reference to obj. The reference is dropped
// once, by Release, no matter how many goroutines call it. Share creates a
// second, independent owner; Move hands ownership to a new Ref and leaves
// the old one empty.
//
// Pass a *Ref around, never a copy of the struct.
type Ref[T Object] struct {
	_    noCopy
	obj  T
	dead atomic.Bool
}

// Own wraps obj, taking over a reference the caller already holds.
func Own[T Object](obj T) *Ref[T] {
	return &Ref[T]{obj: obj}
}

// Acquire adds a reference to obj and wraps it.
func Acquire[T Object](obj T) *Ref[T] {
	obj.AddRef()
	return &Ref[T]{obj: obj}
}

// Get returns the object while the reference is held.
func (r *Ref[T]) Get() (T, error) {
	if r == nil || r.dead.Load() {
		var zero T
		return zero, ErrReleased
	}
	return r.obj, nil
}

// Valid reports whether r still holds its reference.
func (r *Ref[T]) Valid() bool { return r != nil && !r.dead.Load() }

// Share returns a new owner backed by an extra reference.
func (r *Ref[T]) Share() (*Ref[T], error) {
	obj, err := r.Get()
	if err != nil {
		return nil, err
	}
	return Acquire(obj), nil
}

// Move transfers the reference to a new Ref. r is empty afterwards.
func (r *Ref[T]) Move() (*Ref[T], error) {
	if r == nil || !r.dead.CompareAndSwap(false, true) {
		return nil, ErrReleased
	}
	return &Ref[T]{obj: r.obj}, nil
}

// Release drops the reference. Only the first call has an effect; it reports
// whether this call released.
func (r *Ref[T]) Release() bool {
	if r == nil || !r.dead.CompareAndSwap(false, true) {
		return false
	}
	r.obj.Release()
	return true
}

// noCopy trips go vet's copylocks check when a Ref is copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
