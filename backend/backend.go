// Package backend is the boundary between the client runtime and the library
// that owns the connection to the gateway.
//
// The library exposes three kinds of object, each a capability interface:
//
//	Library     creates connections and messages
//	Connection  connect / close / send, notifies through a Callback table
//	Message     a reference-counted business message
//
// Every object handed across the boundary is reference counted by the
// library. Code outside this package holds such objects only through a Ref,
// which releases its reference exactly once.
//
// The Callback table is invoked on a goroutine owned by the library. Its
// methods must not block.
package backend

import (
	"time"

	"t2rpc/config"
	"t2rpc/message"
)

// Object is a reference-counted library object.
type Object interface {
	// AddRef acquires one more reference and returns the new count.
	AddRef() int32
	// Release drops one reference and returns the remaining count.
	Release() int32
}

// Library is an initialised backend.
type Library interface {
	// NewConnection returns a connection configured from cfg, holding one reference.
	NewConnection(cfg config.Store) (Connection, error)
	// NewMessage returns an empty message holding one reference.
	NewMessage() Message
	// Version returns the library version number.
	Version() int32
}

// Connection is a single connection to the gateway.
//
// All int32 results follow the library convention: zero or positive is
// success, negative is an error code that ErrorMessage resolves to text.
type Connection interface {
	Object
	// Create installs the callback table. It must be called before Connect.
	Create(cb Callback) int32
	Connect(timeout time.Duration) int32
	Close() int32
	Status() Status
	ErrorMessage(code int32) string
	// SendBizMsg sends msg and returns its send handle. A handle <= 0 means the
	// message was not sent. In async mode the answer arrives through
	// Callback.OnReceivedBizMsg with the same handle.
	SendBizMsg(msg Message, async bool) int32
	// ServerAddress returns the address of the connected gateway.
	ServerAddress() string
}

// Message is a business message owned by the library.
type Message interface {
	Object
	// Envelope exposes the message fields. It is valid while a reference is held.
	Envelope() *message.Envelope
}

// Status is the connection state bit set.
type Status int32

const (
	StatusDisconnected   Status = 0x0000
	StatusConnecting     Status = 0x0001
	StatusConnected      Status = 0x0002
	StatusSafeConnecting Status = 0x0004
	StatusSafeConnected  Status = 0x0008
	StatusRegistering    Status = 0x0010
	StatusRegistered     Status = 0x0020
	StatusRejected       Status = 0x0040
)

func (s Status) Has(flag Status) bool { return s&flag == flag && flag != 0 }

func (s Status) String() string {
	switch {
	case s.Has(StatusRejected):
		return "rejected"
	case s.Has(StatusRegistered):
		return "registered"
	case s.Has(StatusRegistering):
		return "registering"
	case s.Has(StatusSafeConnected):
		return "safe-connected"
	case s.Has(StatusSafeConnecting):
		return "safe-connecting"
	case s.Has(StatusConnected):
		return "connected"
	case s.Has(StatusConnecting):
		return "connecting"
	}
	return "disconnected"
}

// RetData is the answer header passed to OnReceivedBizEx.
type RetData struct {
	FunctionID int32
	ReturnCode int32
	ErrorNo    int32
	ErrorInfo  string
	IssueType  int32
	KeyInfo    []byte
	SendInfo   message.RouteInfo
}
