package transport

import (
	"sync/atomic"

	"t2rpc/message"
)

// Message is the library's reference-counted envelope.
type Message struct {
	refs atomic.Int32
	env  message.Envelope
}

func newMessage(env *message.Envelope) *Message {
	m := &Message{}
	m.refs.Store(1)
	if env != nil {
		m.env = *env
	}
	return m
}

func (m *Message) AddRef() int32 { return m.refs.Add(1) }

// Release drops one reference. Dropping more references than were taken is
// a programming error and panics.
func (m *Message) Release() int32 {
	n := m.refs.Add(-1)
	if n < 0 {
		panic("transport: message released more times than referenced")
	}
	if n == 0 {
		m.env.Reset()
	}
	return n
}

func (m *Message) Envelope() *message.Envelope { return &m.env }

// Refs returns the current reference count.
func (m *Message) Refs() int32 { return m.refs.Load() }
