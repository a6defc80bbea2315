package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestFileStoreGetSet(t *testing.T) {
	s := NewFileStore()
	if got := s.GetString(SectionT2SDK, KeyServers, "none"); got != "none" {
		t.Fatalf("expect default, got %q", got)
	}
	if err := s.SetString(SectionT2SDK, KeyServers, "127.0.0.1:9100"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetInt(SectionT2SDK, KeyHeartbeatMS, 500); err != nil {
		t.Fatal(err)
	}
	if got := s.GetString(SectionT2SDK, KeyServers, ""); got != "127.0.0.1:9100" {
		t.Fatalf("expect servers, got %q", got)
	}
	if got := s.GetInt(SectionT2SDK, KeyHeartbeatMS, 0); got != 500 {
		t.Fatalf("expect 500, got %d", got)
	}
	// 非数字值取默认值
	if got := s.GetInt(SectionT2SDK, KeyServers, 7); got != 7 {
		t.Fatalf("expect default for non-integer, got %d", got)
	}
	if err := s.SetString("", "x", "y"); err == nil {
		t.Fatal("expect error for empty section")
	}
}

func TestFileStoreINIRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "t2sdk.ini")
	ini := "; client config\n[t2sdk]\nservers = 10.0.0.1:9100;10.0.0.2:9100\nheartbeat_ms=1000\n\n[safe]\nsafe_level=none\n"
	if err := os.WriteFile(src, []byte(ini), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore()
	if err := s.Load(src); err != nil {
		t.Fatal(err)
	}
	if got := s.GetString(SectionT2SDK, KeyServers, ""); got != "10.0.0.1:9100;10.0.0.2:9100" {
		t.Fatalf("unexpected servers %q", got)
	}
	if got := s.GetString("safe", "safe_level", ""); got != "none" {
		t.Fatalf("unexpected safe_level %q", got)
	}

	dst := filepath.Join(dir, "out.ini")
	if err := s.Save(dst); err != nil {
		t.Fatal(err)
	}
	again := NewFileStore()
	if err := again.Load(dst); err != nil {
		t.Fatal(err)
	}
	if got := again.GetInt(SectionT2SDK, KeyHeartbeatMS, 0); got != 1000 {
		t.Fatalf("expect 1000 after save/load, got %d", got)
	}
}

func TestFileStoreYAML(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore()
	if err := Apply(s, map[string]map[string]any{
		SectionT2SDK: {KeyServers: "127.0.0.1:9100", KeyLicenseNo: "LIC-1", KeyCompanyID: 91000},
	}); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "t2sdk.yaml")
	if err := s.Save(file); err != nil {
		t.Fatal(err)
	}

	loaded := NewFileStore()
	if err := loaded.Load(file); err != nil {
		t.Fatal(err)
	}
	if got := loaded.GetInt(SectionT2SDK, KeyCompanyID, 0); got != 91000 {
		t.Fatalf("expect 91000, got %d", got)
	}
	if got := loaded.GetString(SectionT2SDK, KeyLicenseNo, ""); got != "LIC-1" {
		t.Fatalf("expect LIC-1, got %q", got)
	}
}

func TestINIRejectsGarbage(t *testing.T) {
	if _, err := parseINI([]byte("[t2sdk\nservers=x\n")); err == nil {
		t.Fatal("expect error for unterminated section")
	}
	if _, err := parseINI([]byte("servers=x\n")); err == nil {
		t.Fatal("expect error for entry outside a section")
	}
	if err := Apply(NewFileStore(), map[string]map[string]any{"a": {"b": true}}); err == nil {
		t.Fatal("expect error for unsupported value")
	}
}

// 需要本地 etcd (localhost:2379)，不可用时跳过
func newTestEtcd(t *testing.T) *clientv3.Client {
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
	return c
}

func TestEtcdStore(t *testing.T) {
	c := newTestEtcd(t)
	prefix := "/t2rpc-test/config-" + time.Now().Format("150405.000000")
	s := NewEtcdStoreFromClient(c, prefix)
	defer func() {
		c.Delete(context.Background(), prefix+"/", clientv3.WithPrefix())
		s.Close()
	}()

	if err := s.SetInt(SectionT2SDK, KeyHeartbeatMS, 250); err != nil {
		t.Fatal(err)
	}
	if got := s.GetInt(SectionT2SDK, KeyHeartbeatMS, 0); got != 250 {
		t.Fatalf("expect 250, got %d", got)
	}
	if got := s.GetString(SectionT2SDK, "missing", "def"); got != "def" {
		t.Fatalf("expect default, got %q", got)
	}

	file := filepath.Join(t.TempDir(), "dump.ini")
	if err := s.Save(file); err != nil {
		t.Fatal(err)
	}
	fs := NewFileStore()
	if err := fs.Load(file); err != nil {
		t.Fatal(err)
	}
	if got := fs.GetInt(SectionT2SDK, KeyHeartbeatMS, 0); got != 250 {
		t.Fatalf("expect dumped value 250, got %d", got)
	}
}
