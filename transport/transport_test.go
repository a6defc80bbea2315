package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"t2rpc/backend"
	"t2rpc/config"
	"t2rpc/message"
	"t2rpc/registry"
	"t2rpc/server"
)

// recorder 记录 callback 调用
type recorder struct {
	backend.NopCallback
	mu       sync.Mutex
	answers  map[int32]*message.Envelope
	arrived  chan int32
	closed   atomic.Int32
	connects atomic.Int32
}

func newRecorder() *recorder {
	return &recorder{answers: make(map[int32]*message.Envelope), arrived: make(chan int32, 256)}
}

func (r *recorder) OnConnect(backend.Connection) { r.connects.Add(1) }
func (r *recorder) OnClose(backend.Connection)   { r.closed.Add(1) }

func (r *recorder) OnReceivedBizMsg(_ backend.Connection, handle int32, msg backend.Message) {
	r.mu.Lock()
	r.answers[handle] = msg.Envelope().Clone()
	r.mu.Unlock()
	r.arrived <- handle
}

func (r *recorder) answer(handle int32) *message.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answers[handle]
}

func startGateway(t *testing.T) (*server.Server, string) {
	t.Helper()
	svr := server.NewServer()
	svr.Handle(7, func(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
		ans := server.Answer(req)
		ans.Content = append([]byte("echo:"), req.Content...)
		return ans, nil
	})
	addr, err := svr.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.Serve("", nil)
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr, addr.String()
}

func newConnected(t *testing.T, lib *Library, cfg config.Store) (*Connection, *recorder) {
	t.Helper()
	c, err := lib.NewConnection(cfg)
	if err != nil {
		t.Fatal(err)
	}
	conn := c.(*Connection)
	rec := newRecorder()
	if rc := conn.Create(rec); rc != backend.CodeOK {
		t.Fatalf("create: %s", conn.ErrorMessage(rc))
	}
	if rc := conn.Connect(time.Second); rc != backend.CodeOK {
		t.Fatalf("connect: %s", conn.ErrorMessage(rc))
	}
	t.Cleanup(func() { conn.ActiveClose() })
	return conn, rec
}

func storeWith(values map[string]any) config.Store {
	s := config.NewFileStore()
	config.Apply(s, map[string]map[string]any{config.SectionT2SDK: values})
	return s
}

func TestSendReceive(t *testing.T) {
	_, addr := startGateway(t)
	for _, name := range []string{"binary", "json"} {
		lib := NewLibrary()
		conn, rec := newConnected(t, lib, storeWith(map[string]any{
			config.KeyServers: addr,
			config.KeyCodec:   name,
		}))
		if !conn.Status().Has(backend.StatusRegistered) || conn.ServerAddress() != addr {
			t.Fatalf("%s: unexpected status %s at %q", name, conn.Status(), conn.ServerAddress())
		}
		if rec.connects.Load() != 1 {
			t.Fatalf("%s: expect OnConnect once", name)
		}

		msg := lib.WrapEnvelope(message.NewRequest(7))
		msg.Envelope().Content = []byte(name)
		handle := conn.SendBizMsg(msg, true)
		msg.Release()
		if handle <= 0 {
			t.Fatalf("%s: send failed: %s", name, conn.ErrorMessage(handle))
		}

		select {
		case got := <-rec.arrived:
			if got != handle {
				t.Fatalf("%s: expect handle %d, got %d", name, handle, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: no answer", name)
		}
		if ans := rec.answer(handle); string(ans.Content) != "echo:"+name {
			t.Fatalf("%s: unexpected content %q", name, ans.Content)
		}
	}
}

// 并发发送，handle 唯一且每个应答都回到对应 handle
func TestConcurrentHandles(t *testing.T) {
	_, addr := startGateway(t)
	lib := NewLibrary()
	conn, rec := newConnected(t, lib, storeWith(map[string]any{config.KeyServers: addr}))

	const n = 50
	handles := make(chan int32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := lib.WrapEnvelope(message.NewRequest(7))
			defer msg.Release()
			handles <- conn.SendBizMsg(msg, true)
		}()
	}
	wg.Wait()
	close(handles)

	seen := map[int32]bool{}
	for h := range handles {
		if h <= 0 || seen[h] {
			t.Fatalf("bad or duplicate handle %d", h)
		}
		seen[h] = true
	}
	for i := 0; i < n; i++ {
		select {
		case h := <-rec.arrived:
			if !seen[h] {
				t.Fatalf("answer for unknown handle %d", h)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d answers arrived", i, n)
		}
	}
}

func TestConnectErrors(t *testing.T) {
	lib := NewLibrary()

	c, _ := lib.NewConnection(storeWith(nil))
	conn := c.(*Connection)
	if rc := conn.Connect(time.Second); rc != backend.CodeNotCreated {
		t.Fatalf("expect CodeNotCreated, got %d", rc)
	}
	conn.Create(newRecorder())
	if rc := conn.Create(newRecorder()); rc != backend.CodeAlreadyCreated {
		t.Fatalf("expect CodeAlreadyCreated, got %d", rc)
	}
	if rc := conn.Connect(time.Second); rc != backend.CodeNoServer {
		t.Fatalf("expect CodeNoServer, got %d", rc)
	}

	// 拿一个已关闭的端口
	svr, addr := startGateway(t)
	svr.Shutdown(time.Second)
	conn.SetServers(addr)
	if rc := conn.Connect(time.Second); rc != backend.CodeConnectFailed {
		t.Fatalf("expect CodeConnectFailed, got %d (%s)", rc, conn.ErrorMessage(rc))
	}
	if msg := conn.ErrorMessage(backend.CodeConnectFailed); len(msg) <= len(backend.CodeText(backend.CodeConnectFailed)) {
		t.Fatalf("expect the dial error in the message, got %q", msg)
	}

	msg := lib.WrapEnvelope(message.NewRequest(7))
	defer msg.Release()
	if h := conn.SendBizMsg(msg, true); h != backend.CodeNotConnected {
		t.Fatalf("expect CodeNotConnected, got %d", h)
	}
	if h := conn.SendBizMsg(msg, false); h != backend.CodeSyncUnsupported {
		t.Fatalf("expect CodeSyncUnsupported, got %d", h)
	}
}

func TestRegistryDiscovery(t *testing.T) {
	_, addr := startGateway(t)
	reg := registry.NewStaticRegistry()
	reg.Register(context.Background(), "gw", registry.ServiceInstance{Addr: addr, Weight: 1}, 0)

	lib := NewLibrary(WithRegistry(reg, nil))
	conn, _ := newConnected(t, lib, storeWith(map[string]any{config.KeyRegistryService: "gw"}))
	if conn.ServerAddress() != addr {
		t.Fatalf("expect discovered address %s, got %s", addr, conn.ServerAddress())
	}
}

func TestConnectionLost(t *testing.T) {
	svr, addr := startGateway(t)
	lib := NewLibrary()
	conn, rec := newConnected(t, lib, storeWith(map[string]any{config.KeyServers: addr}))

	svr.DropConnections()
	deadline := time.Now().Add(2 * time.Second)
	for rec.closed.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("OnClose never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if conn.Status() != backend.StatusDisconnected {
		t.Fatalf("expect disconnected, got %s", conn.Status())
	}

	// 断线后可以重连
	if rc := conn.Connect(time.Second); rc != backend.CodeOK {
		t.Fatalf("reconnect: %s", conn.ErrorMessage(rc))
	}
	if rc := conn.Close(); rc != backend.CodeOK {
		t.Fatalf("close: %d", rc)
	}
	if rec.closed.Load() != 2 {
		t.Fatalf("expect OnClose after Close, got %d", rec.closed.Load())
	}
	if rc := conn.Close(); rc != backend.CodeNotConnected {
		t.Fatalf("expect second close to report not connected, got %d", rc)
	}
}

func TestMessageRefs(t *testing.T) {
	m := NewLibrary().NewMessage().(*Message)
	m.Envelope().FunctionNo = 9
	m.AddRef()
	if m.Release() != 1 || m.Envelope().FunctionNo != 9 {
		t.Fatal("envelope must survive while a reference is held")
	}
	if m.Release() != 0 {
		t.Fatal("expect zero refs")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expect panic on over-release")
		}
	}()
	m.Release()
}
