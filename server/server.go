// Package server is an in-process gateway: it accepts client connections,
// routes each request by function number through a middleware chain and
// answers with the request's handle. Tests and demos run the client against
// it.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Codec.Decode → Middleware Chain → function handler → Codec.Encode → write answer
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"t2rpc/codec"
	"t2rpc/message"
	"t2rpc/middleware"
	"t2rpc/protocol"
	"t2rpc/registry"
)

var ErrNotListening = errors.New("server: Listen has not been called")

// Server is the gateway.
type Server struct {
	functions   *functionTable
	listener    net.Listener
	wg          sync.WaitGroup // in-flight requests, for graceful shutdown
	shutdown    atomic.Bool    // set before the listener closes so Accept errors read as intentional
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(dispatch)))

	logger        *zap.Logger
	serviceName   string
	ttl           int64
	registry      registry.Registry // nil if not using discovery
	advertiseAddr string            // routable address registered in etcd, not the listen address

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceName sets the name the gateway registers under.
func WithServiceName(name string) Option {
	return func(s *Server) { s.serviceName = name }
}

func WithRegistryTTL(ttl int64) Option {
	return func(s *Server) { s.ttl = ttl }
}

// NewServer creates a gateway with no functions.
func NewServer(opts ...Option) *Server {
	s := &Server{
		functions:   newFunctionTable(),
		logger:      zap.NewNop(),
		serviceName: "t2gateway",
		ttl:         10,
		conns:       make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers h for a function number.
func (svr *Server) Handle(functionNo int32, h middleware.HandlerFunc) error {
	return svr.functions.add(functionNo, h)
}

// HandleRecord registers a function that reads and writes record buffers.
func (svr *Server) HandleRecord(functionNo int32, fn RecordFunc) error {
	if fn == nil {
		return fmt.Errorf("server: nil handler for function %d", functionNo)
	}
	return svr.functions.add(functionNo, adaptRecord(fn))
}

// Use registers a middleware. Middlewares are applied in the order they are
// added and must be registered before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Listen opens the listener. Use "127.0.0.1:0" and Addr to get a free port.
func (svr *Server) Listen(network, address string) (net.Addr, error) {
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	svr.listener = listener
	return listener.Addr(), nil
}

// Addr returns the listen address, or nil before Listen.
func (svr *Server) Addr() net.Addr {
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// ListenAndServe is Listen followed by Serve.
func (svr *Server) ListenAndServe(network, address, advertiseAddr string, reg registry.Registry) error {
	if _, err := svr.Listen(network, address); err != nil {
		return err
	}
	return svr.Serve(advertiseAddr, reg)
}

// Serve registers the gateway (when reg is not nil) and runs the accept loop
// until Shutdown.
//
//   - advertiseAddr: the address to register, e.g. "127.0.0.1:8080". It differs
//     from the listen address because ":8080" is not routable for clients.
//     Empty means the listener's address.
func (svr *Server) Serve(advertiseAddr string, reg registry.Registry) error {
	if svr.listener == nil {
		return ErrNotListening
	}

	// Chain(A, B, C)(h) → A(B(C(h))), built once, not per request
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	if advertiseAddr == "" {
		advertiseAddr = svr.listener.Addr().String()
	}
	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		err := reg.Register(context.Background(), svr.serviceName, registry.ServiceInstance{
			Addr:   advertiseAddr,
			Weight: 1,
		}, svr.ttl)
		if err != nil {
			return fmt.Errorf("server: register %s: %w", svr.serviceName, err)
		}
	}
	svr.logger.Info("gateway serving",
		zap.String("addr", svr.listener.Addr().String()),
		zap.Int("functions", svr.functions.len()))

	for {
		conn, err := svr.listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// handleConn reads frames sequentially and hands each request to its own
// goroutine. The per-connection writeMu keeps concurrent answers from
// interleaving on the wire.
func (svr *Server) handleConn(conn net.Conn) {
	svr.connsMu.Lock()
	svr.conns[conn] = struct{}{}
	svr.connsMu.Unlock()
	defer func() {
		svr.connsMu.Lock()
		delete(svr.conns, conn)
		svr.connsMu.Unlock()
		conn.Close()
	}()

	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			break
		}
		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}
		svr.wg.Add(1)
		go svr.handleRequest(header, body, conn, writeMu)
	}
}

// handleRequest decodes one request, runs the chain and writes the answer
// with the request's handle.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()

	c := codec.GetCodec(codec.CodecType(header.CodecType))
	var req message.Envelope
	if err := c.Decode(body, &req); err != nil {
		svr.logger.Warn("drop undecodable request", zap.Uint32("handle", header.Handle), zap.Error(err))
		return
	}

	resp, err := svr.handler(context.Background(), &req)
	if err != nil {
		resp = Fail(&req, ErrFunctionNo, "%v", err)
	}
	if resp == nil {
		resp = Answer(&req)
	}
	resp.PacketType = message.PacketAnswer
	if resp.AppData == nil {
		resp.AppData = req.AppData
	}

	result, err := c.Encode(resp)
	if err != nil {
		svr.logger.Error("encode answer", zap.Int32("function_no", req.FunctionNo), zap.Error(err))
		return
	}

	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeAnswer,
		Handle:    header.Handle, // echoed so the client can match the answer
	}
	writeMu.Lock()
	err = protocol.Encode(conn, &replyHeader, result)
	writeMu.Unlock()
	if err != nil {
		svr.logger.Warn("write answer", zap.Uint32("handle", header.Handle), zap.Error(err))
	}
}

// dispatch is the innermost handler: look up the function and run it.
func (svr *Server) dispatch(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
	f, ok := svr.functions.get(req.FunctionNo)
	if !ok {
		return Fail(req, ErrNoFunctionNo, "function %d not found", req.FunctionNo), nil
	}
	return f.handler(ctx, req)
}

// DropConnections closes every client connection without stopping the
// listener. Clients see the connection as lost.
func (svr *Server) DropConnections() {
	svr.connsMu.Lock()
	defer svr.connsMu.Unlock()
	for conn := range svr.conns {
		conn.Close()
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop picking this gateway)
//  2. Set the shutdown flag (so the Accept error is recognized as intentional)
//  3. Close the listener and the client connections
//  4. Wait for in-flight requests to finish (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil {
		if err := svr.registry.Deregister(context.Background(), svr.serviceName, svr.advertiseAddr); err != nil {
			svr.logger.Warn("deregister", zap.Error(err))
		}
	}

	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		svr.DropConnections()
		return nil
	case <-time.After(timeout):
		svr.DropConnections()
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
