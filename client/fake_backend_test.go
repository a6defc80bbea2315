package client

import (
	"sync"
	"sync/atomic"
	"time"

	"t2rpc/backend"
	"t2rpc/config"
	"t2rpc/message"
)

// 用于单元测试的内存 backend，应答由测试直接调用 callback 注入

type fakeMessage struct {
	refs atomic.Int32
	env  message.Envelope
}

func newFakeMessage() *fakeMessage {
	m := &fakeMessage{}
	m.refs.Store(1)
	return m
}

func (m *fakeMessage) AddRef() int32                { return m.refs.Add(1) }
func (m *fakeMessage) Release() int32               { return m.refs.Add(-1) }
func (m *fakeMessage) Envelope() *message.Envelope { return &m.env }

type fakeConn struct {
	refs   atomic.Int32
	status atomic.Int32

	mu          sync.Mutex
	cb          backend.Callback
	sent        []*message.Envelope
	handle      int32
	refuse      int32 // non-zero: SendBizMsg returns it
	fixedHandle int32 // non-zero: every send gets this handle
	answerFirst bool  // deliver the answer inside SendBizMsg
}

func (c *fakeConn) AddRef() int32  { return c.refs.Add(1) }
func (c *fakeConn) Release() int32 { return c.refs.Add(-1) }

func (c *fakeConn) Create(cb backend.Callback) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cb != nil {
		return backend.CodeAlreadyCreated
	}
	c.cb = cb
	return backend.CodeOK
}

func (c *fakeConn) Connect(time.Duration) int32 {
	c.status.Store(int32(backend.StatusConnected | backend.StatusRegistered))
	return backend.CodeOK
}

func (c *fakeConn) Close() int32 {
	c.status.Store(int32(backend.StatusDisconnected))
	return backend.CodeOK
}

func (c *fakeConn) Status() backend.Status        { return backend.Status(c.status.Load()) }
func (c *fakeConn) ErrorMessage(code int32) string { return backend.CodeText(code) }
func (c *fakeConn) ServerAddress() string          { return "fake:0" }

func (c *fakeConn) SendBizMsg(msg backend.Message, async bool) int32 {
	c.mu.Lock()
	if c.refuse != 0 {
		c.mu.Unlock()
		return c.refuse
	}
	c.handle++
	handle := c.handle
	if c.fixedHandle != 0 {
		handle = c.fixedHandle
	}
	c.sent = append(c.sent, msg.Envelope().Clone())
	answerFirst := c.answerFirst
	c.mu.Unlock()

	if answerFirst {
		c.answer(handle, msg.Envelope())
	}
	return handle
}

// answer 模拟 backend 收到应答：借出一个引用，回调结束后释放；Content 原样带回
func (c *fakeConn) answer(handle int32, req *message.Envelope) *fakeMessage {
	m := newFakeMessage()
	m.env = *req.Clone()
	m.env.ChangeReqToAnswer()
	m.env.Content = append([]byte(nil), req.Content...)
	c.cb.OnReceivedBizMsg(c, handle, m)
	m.Release()
	return m
}

type fakeLibrary struct {
	conn *fakeConn
}

func newFakeLibrary() *fakeLibrary {
	conn := &fakeConn{}
	conn.refs.Store(1)
	return &fakeLibrary{conn: conn}
}

func (l *fakeLibrary) NewConnection(config.Store) (backend.Connection, error) { return l.conn, nil }
func (l *fakeLibrary) NewMessage() backend.Message                           { return newFakeMessage() }
func (l *fakeLibrary) Version() int32                                        { return 1 }
