package client

import (
	"context"
	"fmt"

	"github.com/DANIELAGORA/leiberluna/loadbalance"
	"github.com/DANIELAGORA/leiberluna/registry"
)

// Resolver produces the address to dial on every (re)connect. key identifies the
// client, for balancers with affinity.
type Resolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// StaticResolver always returns the same address.
type StaticResolver string

func (r StaticResolver) Resolve(context.Context, string) (string, error) {
	return string(r), nil
}

// DiscoveryResolver looks the service up in a registry and lets a balancer choose
// among the instances speaking Transport. A nil Balancer takes the first instance.
type DiscoveryResolver struct {
	Registry  registry.Registry
	Service   string
	Transport string
	Balancer  loadbalance.Balancer
}

func (r *DiscoveryResolver) Resolve(ctx context.Context, key string) (string, error) {
	instances, err := r.Registry.Discover(ctx, r.Service)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", r.Service, err)
	}
	instances = registry.FilterTransport(instances, r.Transport)

	balancer := r.Balancer
	if balancer == nil {
		balancer = &loadbalance.RoundRobinBalancer{}
	}
	inst, err := balancer.Pick(instances, key)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", r.Service, err)
	}
	return inst.Addr, nil
}
