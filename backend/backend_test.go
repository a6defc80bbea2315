package backend

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type countedObject struct {
	refs atomic.Int32
}

func (o *countedObject) AddRef() int32  { return o.refs.Add(1) }
func (o *countedObject) Release() int32 { return o.refs.Add(-1) }

func TestRefReleaseOnce(t *testing.T) {
	obj := &countedObject{}
	obj.refs.Store(1)
	ref := Own(obj)

	// 并发释放，只允许一次生效
	var wg sync.WaitGroup
	var released atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ref.Release() {
				released.Add(1)
			}
		}()
	}
	wg.Wait()

	if released.Load() != 1 {
		t.Fatalf("expect exactly one release, got %d", released.Load())
	}
	if obj.refs.Load() != 0 {
		t.Fatalf("expect refcount 0, got %d", obj.refs.Load())
	}
	if _, err := ref.Get(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expect ErrReleased after release, got %v", err)
	}
}

func TestRefShareAndMove(t *testing.T) {
	obj := &countedObject{}
	ref := Acquire(obj)
	if obj.refs.Load() != 1 {
		t.Fatalf("expect Acquire to add a reference, got %d", obj.refs.Load())
	}

	shared, err := ref.Share()
	if err != nil {
		t.Fatal(err)
	}
	if obj.refs.Load() != 2 {
		t.Fatalf("expect Share to add a reference, got %d", obj.refs.Load())
	}

	moved, err := ref.Move()
	if err != nil {
		t.Fatal(err)
	}
	if ref.Valid() {
		t.Fatal("expect source invalid after Move")
	}
	if ref.Release() {
		t.Fatal("expect Release on a moved ref to do nothing")
	}
	if obj.refs.Load() != 2 {
		t.Fatalf("Move must not touch the count, got %d", obj.refs.Load())
	}
	if _, err := ref.Move(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expect ErrReleased moving twice, got %v", err)
	}

	moved.Release()
	shared.Release()
	if obj.refs.Load() != 0 {
		t.Fatalf("expect refcount 0, got %d", obj.refs.Load())
	}

	var nilRef *Ref[*countedObject]
	if nilRef.Valid() || nilRef.Release() {
		t.Fatal("expect nil ref to be inert")
	}
}

func TestStatusAndCodes(t *testing.T) {
	s := StatusConnected | StatusSafeConnected | StatusRegistered
	if !s.Has(StatusConnected) || s.Has(StatusRejected) {
		t.Fatal("unexpected flag test")
	}
	if s.String() != "registered" {
		t.Fatalf("expect registered, got %s", s)
	}
	if StatusDisconnected.String() != "disconnected" {
		t.Fatalf("expect disconnected, got %s", StatusDisconnected)
	}
	if CodeText(CodeNoServer) != "no server address configured" {
		t.Fatalf("unexpected text %q", CodeText(CodeNoServer))
	}
	if CodeText(-1000) != "unknown error -1000" {
		t.Fatalf("unexpected text %q", CodeText(-1000))
	}
}
