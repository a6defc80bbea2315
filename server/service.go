package server

import (
	"context"
	"fmt"
	"sync"

	"t2rpc/message"
	"t2rpc/middleware"
	"t2rpc/record"
)

// Error numbers the gateway puts in an answer it could not get from a function.
const (
	ErrNoFunctionNo int32 = -100 // no function registered under the number
	ErrFunctionNo   int32 = -101 // the function returned an error
	ErrBadContentNo int32 = -102 // request content is not a record buffer
)

// RecordFunc handles a request whose content is a record buffer. The
// returned packer, frozen or not, becomes the answer content. A nil packer
// answers with empty content.
type RecordFunc func(ctx context.Context, req *message.Envelope, in *record.Reader) (*record.Packer, error)

// function is one registered function number.
type function struct {
	no      int32
	handler middleware.HandlerFunc
}

type functionTable struct {
	mu sync.RWMutex
	m  map[int32]*function
}

func newFunctionTable() *functionTable {
	return &functionTable{m: make(map[int32]*function)}
}

func (t *functionTable) add(no int32, h middleware.HandlerFunc) error {
	if h == nil {
		return fmt.Errorf("server: nil handler for function %d", no)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[no]; ok {
		return fmt.Errorf("server: function %d already registered", no)
	}
	t.m[no] = &function{no: no, handler: h}
	return nil
}

func (t *functionTable) get(no int32) (*function, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.m[no]
	return f, ok
}

func (t *functionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Answer returns the answer skeleton for req: a copy with routes swapped,
// content and status cleared, AppData kept.
func Answer(req *message.Envelope) *message.Envelope {
	ans := req.Clone()
	ans.ChangeReqToAnswer()
	return ans
}

// Fail returns an answer carrying an in-band failure.
func Fail(req *message.Envelope, errorNo int32, format string, args ...any) *message.Envelope {
	ans := Answer(req)
	ans.ReturnCode = -1
	ans.ErrorNo = errorNo
	ans.ErrorInfo = fmt.Sprintf(format, args...)
	return ans
}

// adaptRecord turns a RecordFunc into a HandlerFunc.
func adaptRecord(fn RecordFunc) middleware.HandlerFunc {
	return func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
		in, err := record.Open(req.Content)
		if err != nil {
			return Fail(req, ErrBadContentNo, "bad request content: %v", err), nil
		}
		out, err := fn(ctx, req, in)
		if err != nil {
			return nil, err
		}
		ans := Answer(req)
		if out != nil {
			if _, err := out.EndPack(); err != nil {
				return nil, err
			}
			ans.Content = out.Bytes()
		}
		return ans, nil
	}
}
