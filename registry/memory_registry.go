package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry is an in-process Registry for single-host deployments and tests.
// TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string]map[string]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[string]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

func (r *MemoryRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.services[serviceName] == nil {
		r.services[serviceName] = make(map[string]ServiceInstance)
	}
	r.services[serviceName][instance.Addr] = instance
	r.notifyLocked(serviceName)
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services[serviceName], addr)
	r.notifyLocked(serviceName)
	return nil
}

func (r *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(serviceName), nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.watchers[serviceName]
		for i, w := range list {
			if w == ch {
				r.watchers[serviceName] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *MemoryRegistry) listLocked(serviceName string) []ServiceInstance {
	out := make([]ServiceInstance, 0, len(r.services[serviceName]))
	for _, inst := range r.services[serviceName] {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// notifyLocked replaces any unread update with the latest list.
func (r *MemoryRegistry) notifyLocked(serviceName string) {
	list := r.listLocked(serviceName)
	for _, ch := range r.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
