// Package registry tells clients where the gateways are.
package registry

import (
	"context"
	"strings"
)

// ServiceInstance is one gateway endpoint.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}

// ParseServers splits a "host:port;host:port" list. Commas are accepted as
// separators too; blanks are dropped. Every instance gets weight 1.
func ParseServers(list string) []ServiceInstance {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ';' || r == ',' || r == ' '
	})
	out := make([]ServiceInstance, 0, len(fields))
	for _, f := range fields {
		out = append(out, ServiceInstance{Addr: f, Weight: 1})
	}
	return out
}
