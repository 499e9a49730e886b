// Package loadbalance picks which registered server instance a client connects to.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances, spread connections evenly
//   - WeightedRandom:  heterogeneous instances, proportional to Weight
//   - ConsistentHash:  the same client keeps landing on the same instance
package loadbalance

import (
	"fmt"

	"github.com/DANIELAGORA/leiberluna/registry"
)

// Balancer is the interface for load balancing strategies. Pick is called on every
// (re)connect and must be goroutine-safe. key identifies the caller; strategies
// without affinity ignore it.
type Balancer interface {
	Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the strategy registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
