// Package loadbalance picks the gateway a connection dials.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity gateways
//   - WeightedRandom:  gateways of different capacity
//   - ConsistentHash:  the same client lands on the same gateway while the set is stable
package loadbalance

import (
	"errors"

	"t2rpc/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
type Balancer interface {
	// Pick selects one instance from the available list. key identifies the
	// caller; strategies that do not need affinity ignore it.
	// Must be goroutine-safe.
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer called name, falling back to round robin.
func New(name string) Balancer {
	switch name {
	case "weighted_random":
		return &WeightedRandomBalancer{}
	case "consistent_hash":
		return NewConsistentHashBalancer()
	}
	return &RoundRobinBalancer{}
}
