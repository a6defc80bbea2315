// Package transport is the TCP implementation of the backend library.
//
// A Connection owns one TCP connection to a gateway and multiplexes every
// request over it. Each sent message gets a fresh handle, carried in the
// frame header; the gateway echoes it on the answer, and a background
// goroutine (recvLoop) hands every answer to the installed callback table.
//
//	goroutine-1 ──SendBizMsg → handle 1──┐
//	goroutine-2 ──SendBizMsg → handle 2──┼──→ single TCP conn ──→ gateway
//	goroutine-3 ──SendBizMsg → handle 3──┘
//
//	recvLoop: ←── answer(handle=2) → Callback.OnReceivedBizMsg(conn, 2, msg)
//
// The transport keeps no pending table of its own: matching answers to
// waiters is the caller's business.
package transport

import (
	"go.uber.org/zap"

	"t2rpc/backend"
	"t2rpc/config"
	"t2rpc/loadbalance"
	"t2rpc/message"
	"t2rpc/registry"
)

// LibraryVersion is reported by Library.Version.
const LibraryVersion int32 = 0x00010200

// Library creates connections and messages.
type Library struct {
	logger   *zap.Logger
	registry registry.Registry
	balancer loadbalance.Balancer
}

var _ backend.Library = (*Library)(nil)

type Option func(*Library)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Library) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRegistry lets connections discover gateway addresses when the
// configuration lists no servers. bal picks among the discovered instances;
// nil selects round robin.
func WithRegistry(reg registry.Registry, bal loadbalance.Balancer) Option {
	return func(l *Library) {
		l.registry = reg
		if bal != nil {
			l.balancer = bal
		}
	}
}

// WithBalancer sets how a connection picks among several configured servers.
func WithBalancer(bal loadbalance.Balancer) Option {
	return func(l *Library) {
		if bal != nil {
			l.balancer = bal
		}
	}
}

func NewLibrary(opts ...Option) *Library {
	l := &Library{
		logger:   zap.NewNop(),
		balancer: &loadbalance.RoundRobinBalancer{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) NewConnection(cfg config.Store) (backend.Connection, error) {
	return newConnection(l, cfg), nil
}

func (l *Library) NewMessage() backend.Message {
	return newMessage(nil)
}

func (l *Library) Version() int32 { return LibraryVersion }

// WrapEnvelope returns a message holding one reference and a copy of env.
func (l *Library) WrapEnvelope(env *message.Envelope) *Message {
	return newMessage(env)
}
