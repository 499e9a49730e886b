package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix is the root of every registry key:
//
//	/leiberluna/{ServiceName}/{Addr} → JSON ServiceInstance
const KeyPrefix = "/leiberluna/"

// EtcdRegistry stores instances in etcd under TTL leases, so a crashed server
// disappears once its lease expires.
type EtcdRegistry struct {
	client *clientv3.Client
	log    zerolog.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease, revoked on Deregister
}

func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, log zerolog.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &EtcdRegistry{
		client: c,
		log:    log.With().Str("component", "registry").Logger(),
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func instanceKey(serviceName, addr string) string {
	return KeyPrefix + serviceName + "/" + addr
}

func servicePrefix(serviceName string) string {
	return KeyPrefix + serviceName + "/"
}

// Register puts the instance under a lease of ttl seconds and keeps the lease alive
// in the background until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := instanceKey(serviceName, instance.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	// KeepAlive must outlive the registering call, so it gets its own context.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
		r.log.Debug().Str("key", key).Msg("lease keepalive stopped")
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	key := instanceKey(serviceName, addr)
	r.mu.Lock()
	leaseID, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if ok {
		if _, err := r.client.Revoke(ctx, leaseID); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("revoke lease")
		}
	}
	return nil
}

// Watch emits the full instance list after every change under the service prefix,
// until ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				r.log.Warn().Err(err).Str("service", serviceName).Msg("rediscover after watch event")
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warn().Str("key", string(kv.Key)).Msg("skipping malformed instance")
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
