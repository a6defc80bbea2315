package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"t2rpc/backend"
	"t2rpc/codec"
	"t2rpc/config"
	"t2rpc/loadbalance"
	"t2rpc/message"
	"t2rpc/protocol"
	"t2rpc/registry"
)

const (
	defaultHeartbeat      = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

// Connection is one multiplexed TCP connection to a gateway.
type Connection struct {
	lib      *Library
	cfg      config.Store
	logger   *zap.Logger
	clientID string
	refs     atomic.Int32

	status atomic.Int32 // backend.Status
	handle atomic.Int32 // last handle handed out

	mu      sync.Mutex // guards everything below
	cb      backend.Callback
	conn    net.Conn
	addr    string
	servers string // overrides the configured list when set
	lastErr error
	closing bool          // Close or ActiveClose in progress
	quiet   bool          // suppress OnClose for an active close
	stop    chan struct{} // closed to stop the heartbeat loop
	loops   sync.WaitGroup

	sending sync.Mutex // one frame at a time on conn
}

var _ backend.Connection = (*Connection)(nil)

func newConnection(lib *Library, cfg config.Store) *Connection {
	id := uuid.NewString()
	c := &Connection{
		lib:      lib,
		cfg:      cfg,
		clientID: id,
		logger:   lib.logger.With(zap.String("client_id", id)),
	}
	c.refs.Store(1)
	return c
}

// ClientID is the random id this connection presents in logs and to
// affinity balancers.
func (c *Connection) ClientID() string { return c.clientID }

func (c *Connection) AddRef() int32 { return c.refs.Add(1) }

// Release drops a reference. The last one closes the connection.
func (c *Connection) Release() int32 {
	n := c.refs.Add(-1)
	if n < 0 {
		panic("transport: connection released more times than referenced")
	}
	if n == 0 {
		c.ActiveClose()
	}
	return n
}

func (c *Connection) Create(cb backend.Callback) int32 {
	if cb == nil {
		return backend.CodeInvalidMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cb != nil {
		return backend.CodeAlreadyCreated
	}
	c.cb = cb
	return backend.CodeOK
}

// SetServers replaces the configured server list for the next Connect.
func (c *Connection) SetServers(list string) {
	c.mu.Lock()
	c.servers = list
	c.mu.Unlock()
}

// Connect dials the first reachable gateway within timeout. A non-positive
// timeout uses the configured connect_timeout_ms.
func (c *Connection) Connect(timeout time.Duration) int32 {
	c.mu.Lock()
	if c.cb == nil {
		c.mu.Unlock()
		return backend.CodeNotCreated
	}
	if c.conn != nil {
		c.mu.Unlock()
		return backend.CodeAlreadyConnected
	}
	if timeout <= 0 {
		timeout = c.cfgDuration(config.KeyConnectTimeout, defaultConnectTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	candidates, err := c.candidates(ctx)
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("no gateway to dial", zap.Error(err))
		return backend.CodeNoServer
	}

	c.status.Store(int32(backend.StatusConnecting))
	var dialer net.Dialer
	for _, addr := range candidates {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			c.lastErr = err
			c.logger.Debug("dial failed", zap.String("addr", addr), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		cb := c.attach(conn, addr)
		c.mu.Unlock()

		// hooks run outside mu so they may call back into the connection
		cb.OnConnect(c)
		cb.OnSafeConnect(c)
		cb.OnRegister(c)
		return backend.CodeOK
	}

	c.status.Store(int32(backend.StatusDisconnected))
	lastErr := c.lastErr
	c.mu.Unlock()
	if errors.Is(lastErr, context.DeadlineExceeded) || isTimeout(lastErr) {
		return backend.CodeConnectTimeout
	}
	return backend.CodeConnectFailed
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// candidates lists the addresses to try, the balancer's pick first.
func (c *Connection) candidates(ctx context.Context) ([]string, error) {
	list := c.servers
	if list == "" && c.cfg != nil {
		list = c.cfg.GetString(config.SectionT2SDK, config.KeyServers, "")
	}
	instances := registry.ParseServers(list)

	if len(instances) == 0 && c.lib.registry != nil {
		service := "t2gateway"
		if c.cfg != nil {
			service = c.cfg.GetString(config.SectionT2SDK, config.KeyRegistryService, service)
		}
		found, err := c.lib.registry.Discover(ctx, service)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", service, err)
		}
		instances = found
	}

	bal := c.lib.balancer
	if c.cfg != nil {
		if name := c.cfg.GetString(config.SectionT2SDK, config.KeyBalancer, ""); name != "" {
			bal = loadbalance.New(name)
		}
	}
	first, err := bal.Pick(c.clientID, instances)
	if err != nil {
		return nil, err
	}

	out := []string{first.Addr}
	for _, inst := range instances {
		if inst.Addr != first.Addr {
			out = append(out, inst.Addr)
		}
	}
	return out, nil
}

// attach takes over a dialed conn and starts the loops. Caller holds mu.
func (c *Connection) attach(conn net.Conn, addr string) backend.Callback {
	c.conn = conn
	c.addr = addr
	c.lastErr = nil
	c.closing, c.quiet = false, false
	c.stop = make(chan struct{})

	// no handshake on this transport: connected means registered
	c.status.Store(int32(backend.StatusConnected | backend.StatusSafeConnected | backend.StatusRegistered))
	c.logger.Info("connected", zap.String("addr", addr))

	cb := c.cb
	c.loops.Add(2)
	go c.recvLoop(conn, cb)
	go c.heartbeatLoop(conn, c.stop, c.cfgDuration(config.KeyHeartbeatMS, defaultHeartbeat))
	return cb
}

func (c *Connection) cfgDuration(key string, def time.Duration) time.Duration {
	if c.cfg == nil {
		return def
	}
	ms := c.cfg.GetInt(config.SectionT2SDK, key, int(def/time.Millisecond))
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Connection) codecType() codec.CodecType {
	if c.cfg == nil {
		return codec.CodecTypeBinary
	}
	return codec.ParseCodecType(c.cfg.GetString(config.SectionT2SDK, config.KeyCodec, "binary"))
}

// Close disconnects and fires OnClose. It waits for the receive loop, so it
// must not be called from inside a callback.
func (c *Connection) Close() int32 { return c.close(false) }

// ActiveClose disconnects without firing OnClose.
func (c *Connection) ActiveClose() int32 { return c.close(true) }

func (c *Connection) close(quiet bool) int32 {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closing {
		c.mu.Unlock()
		return backend.CodeNotConnected
	}
	c.closing, c.quiet = true, quiet
	close(c.stop)
	c.mu.Unlock()

	// recvLoop notices the closed conn and finishes the teardown
	conn.Close()
	c.loops.Wait()
	return backend.CodeOK
}

func (c *Connection) Status() backend.Status { return backend.Status(c.status.Load()) }

// ErrorMessage resolves a result code; connect failures carry the last dial error.
func (c *Connection) ErrorMessage(code int32) string {
	text := backend.CodeText(code)
	c.mu.Lock()
	lastErr := c.lastErr
	c.mu.Unlock()
	if lastErr != nil && (code == backend.CodeConnectFailed || code == backend.CodeConnectTimeout || code == backend.CodeNoServer) {
		return text + ": " + lastErr.Error()
	}
	return text
}

func (c *Connection) ServerAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

func (c *Connection) nextHandle() int32 {
	for {
		old := c.handle.Load()
		next := old + 1
		if old == math.MaxInt32 {
			next = 1
		}
		if c.handle.CompareAndSwap(old, next) {
			return next
		}
	}
}

// SendBizMsg frames msg and writes it. The returned handle is positive on
// success; the answer arrives through OnReceivedBizMsg with that handle.
func (c *Connection) SendBizMsg(msg backend.Message, async bool) int32 {
	if !async {
		return backend.CodeSyncUnsupported
	}
	if msg == nil {
		return backend.CodeInvalidMessage
	}

	c.mu.Lock()
	conn, cb := c.conn, c.cb
	c.mu.Unlock()
	if conn == nil || !c.Status().Has(backend.StatusRegistered) {
		return backend.CodeNotConnected
	}

	ct := c.codecType()
	body, err := codec.GetCodec(ct).Encode(msg.Envelope())
	if err != nil {
		c.logger.Warn("encode message", zap.Error(err))
		return backend.CodeEncodeFailed
	}

	c.sending.Lock()
	handle := c.nextHandle()
	header := protocol.Header{
		CodecType: byte(ct),
		MsgType:   protocol.MsgTypeRequest,
		Handle:    uint32(handle),
	}
	err = protocol.Encode(conn, &header, body)
	c.sending.Unlock()
	if err != nil {
		c.logger.Warn("write frame", zap.Int32("handle", handle), zap.Error(err))
		return backend.CodeSendFailed
	}

	cb.OnSent(c, handle, 0)
	return handle
}

// recvLoop is the only reader of conn. Each answer is wrapped in a message
// holding one reference for the duration of the callback.
func (c *Connection) recvLoop(conn net.Conn, cb backend.Callback) {
	defer c.loops.Done()
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			c.teardown(conn, cb, err)
			return
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}

		var env message.Envelope
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, &env); err != nil {
			c.logger.Warn("drop undecodable frame", zap.Uint32("handle", header.Handle), zap.Error(err))
			continue
		}
		msg := newMessage(&env)
		cb.OnReceivedBizMsg(c, int32(header.Handle), msg)
		msg.Release()
	}
}

func (c *Connection) teardown(conn net.Conn, cb backend.Callback, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	quiet := c.quiet
	if !c.closing {
		c.lastErr = cause
		close(c.stop)
	}
	c.conn = nil
	c.status.Store(int32(backend.StatusDisconnected))
	c.mu.Unlock()

	conn.Close()
	if quiet {
		c.logger.Info("closed", zap.String("addr", c.ServerAddress()))
		return
	}
	c.logger.Warn("connection lost", zap.String("addr", c.ServerAddress()), zap.Error(cause))
	cb.OnClose(c)
}

// heartbeatLoop keeps an idle connection alive. Heartbeat frames have no body.
func (c *Connection) heartbeatLoop(conn net.Conn, stop <-chan struct{}, interval time.Duration) {
	defer c.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{
			CodecType: byte(c.codecType()),
			MsgType:   protocol.MsgTypeHeartbeat,
		}
		c.sending.Lock()
		err := protocol.Encode(conn, header, nil)
		c.sending.Unlock()
		if err != nil {
			return
		}
	}
}
