package client

import (
	"go.uber.org/zap"

	"t2rpc/backend"
	"t2rpc/correlator"
)

// delivery is one answer on its way from the backend goroutine to the
// dispatcher. ref keeps the message alive until a waiter takes it.
type delivery struct {
	id  correlator.Identity
	ref *backend.Ref[backend.Message]
}

// trampoline is the callback table handed to the backend. Only the receive
// entry does work: it takes a reference and queues the answer. Everything
// else is a hook with nothing to do.
type trampoline struct {
	backend.NopCallback
	session int32
	events  *correlator.Dispatcher[delivery]
	logger  *zap.Logger
}

func (t *trampoline) OnReceivedBizMsg(_ backend.Connection, handle int32, msg backend.Message) {
	ref := backend.Acquire(msg)
	if !t.events.Enqueue(delivery{id: correlator.Identity{Session: t.session, Handle: handle}, ref: ref}) {
		// client closed
		ref.Release()
	}
}

func (t *trampoline) OnClose(backend.Connection) {
	t.logger.Warn("gateway connection closed", zap.Int32("session", t.session))
}
