package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore keeps configuration in etcd:
//
//	Key:   {prefix}/{section}/{entry}
//	Value: the raw string value
//
// Load and Save move values between a local file and etcd, so a deployment
// can seed the shared store from the same file a standalone client reads.
type EtcdStore struct {
	client  *clientv3.Client
	prefix  string
	timeout time.Duration
}

// NewEtcdStore connects to etcd. An empty prefix defaults to "/t2rpc/config".
func NewEtcdStore(endpoints []string, prefix string) (*EtcdStore, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return NewEtcdStoreFromClient(c, prefix), nil
}

func NewEtcdStoreFromClient(c *clientv3.Client, prefix string) *EtcdStore {
	if prefix == "" {
		prefix = "/t2rpc/config"
	}
	return &EtcdStore{client: c, prefix: strings.TrimSuffix(prefix, "/"), timeout: 3 * time.Second}
}

func (s *EtcdStore) key(section, entry string) string {
	return s.prefix + "/" + section + "/" + entry
}

// Load reads file with a FileStore and writes every value into etcd.
func (s *EtcdStore) Load(file string) error {
	fs := NewFileStore()
	if err := fs.Load(file); err != nil {
		return err
	}
	var firstErr error
	fs.Each(func(section, entry, value string) {
		if firstErr == nil {
			firstErr = s.SetString(section, entry, value)
		}
	})
	return firstErr
}

// Save copies every value under the prefix into file.
func (s *EtcdStore) Save(file string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.Get(ctx, s.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return err
	}
	fs := NewFileStore()
	for _, kv := range resp.Kvs {
		rest := strings.TrimPrefix(string(kv.Key), s.prefix+"/")
		section, entry, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		fs.SetString(section, entry, string(kv.Value))
	}
	return fs.Save(file)
}

// GetString returns def when the key is missing or etcd is unreachable.
func (s *EtcdStore) GetString(section, entry, def string) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.Get(ctx, s.key(section, entry))
	if err != nil || len(resp.Kvs) == 0 {
		return def
	}
	return string(resp.Kvs[0].Value)
}

func (s *EtcdStore) GetInt(section, entry string, def int) int {
	return atoiDefault(s.GetString(section, entry, ""), def)
}

func (s *EtcdStore) SetString(section, entry, value string) error {
	if section == "" || entry == "" {
		return fmt.Errorf("config: empty section or entry")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.client.Put(ctx, s.key(section, entry), value)
	return err
}

func (s *EtcdStore) SetInt(section, entry string, value int) error {
	return s.SetString(section, entry, strconv.Itoa(value))
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
