package registry

import (
	"context"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

func newTestRegistry(t *testing.T) *EtcdRegistry {
	t.Helper()
	c, err := clientv3.New(clientv3.Config{Endpoints: []string{"localhost:2379"}, DialTimeout: time.Second})
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.Status(ctx, "localhost:2379"); err != nil {
		c.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	reg := NewEtcdRegistryFromClient(c, nil)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}

	if err := reg.Register(ctx, "gateway-test", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "gateway-test", inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover(ctx, "gateway-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister(ctx, "gateway-test", inst1.Addr); err != nil {
		t.Fatal(err)
	}
	instances, err = reg.Discover(ctx, "gateway-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 || instances[0].Addr != inst2.Addr {
		t.Fatalf("expect only %s after deregister, got %+v", inst2.Addr, instances)
	}

	reg.Deregister(ctx, "gateway-test", inst2.Addr)
}

func TestStaticRegistryWatch(t *testing.T) {
	reg := NewStaticRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := reg.Watch(ctx, "gw")
	reg.Register(ctx, "gw", ServiceInstance{Addr: "a:1", Weight: 1}, 0)
	reg.Register(ctx, "gw", ServiceInstance{Addr: "b:2", Weight: 1}, 0)

	// 只保留最新列表
	select {
	case list := <-ch:
		if len(list) != 2 {
			t.Fatalf("expect latest list with 2 instances, got %+v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("no watch event")
	}

	reg.Deregister(ctx, "gw", "a:1")
	list := <-ch
	if len(list) != 1 || list[0].Addr != "b:2" {
		t.Fatalf("unexpected list after deregister: %+v", list)
	}

	cancel()
	for range ch {
	}
}

func TestParseServers(t *testing.T) {
	got := ParseServers(" 127.0.0.1:9100;127.0.0.1:9101,, host:1 ")
	if len(got) != 3 || got[0].Addr != "127.0.0.1:9100" || got[2].Addr != "host:1" || got[1].Weight != 1 {
		t.Fatalf("unexpected servers %+v", got)
	}
	if len(ParseServers("")) != 0 {
		t.Fatal("expect empty list")
	}
}
