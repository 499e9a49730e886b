// Package registry lets RPC servers announce themselves and clients find them.
package registry

import (
	"context"
	"errors"
)

// ErrNoInstances is returned when a service has no registered instance.
var ErrNoInstances = errors.New("registry: no instances available")

type ServiceInstance struct {
	Addr      string `json:"addr"`      // dialable address: ws:// URL or host:port
	Transport string `json:"transport"` // "ws" or "tcp"
	Weight    int    `json:"weight"`    // load balancing weight
	Version   string `json:"version"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}

// FilterTransport returns the instances speaking transport. An empty transport
// matches everything.
func FilterTransport(instances []ServiceInstance, transport string) []ServiceInstance {
	if transport == "" {
		return instances
	}
	out := make([]ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		if inst.Transport == "" || inst.Transport == transport {
			out = append(out, inst)
		}
	}
	return out
}
