package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	watchCtx, cancel := context.WithCancel(ctx)
	updates := reg.Watch(watchCtx, "leiberluna")

	inst1 := ServiceInstance{Addr: "ws://10.0.0.1:3002/", Transport: "ws", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "10.0.0.2:3003", Transport: "tcp", Weight: 5, Version: "1.0"}
	require.NoError(t, reg.Register(ctx, "leiberluna", inst1, 10))
	require.NoError(t, reg.Register(ctx, "leiberluna", inst2, 10))

	instances, err := reg.Discover(ctx, "leiberluna")
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{inst2, inst1}, instances)

	assert.Len(t, <-updates, 2)

	require.NoError(t, reg.Deregister(ctx, "leiberluna", inst1.Addr))
	assert.Equal(t, []ServiceInstance{inst2}, <-updates)

	cancel()
	for range updates {
	}
}

func TestFilterTransport(t *testing.T) {
	all := []ServiceInstance{
		{Addr: "a", Transport: "ws"},
		{Addr: "b", Transport: "tcp"},
		{Addr: "c"},
	}
	assert.Equal(t, all, FilterTransport(all, ""))
	ws := FilterTransport(all, "ws")
	require.Len(t, ws, 2)
	assert.Equal(t, "a", ws[0].Addr)
	assert.Equal(t, "c", ws[1].Addr)
}

func etcdEndpoints(t *testing.T) []string {
	raw := os.Getenv("LEIBERLUNA_ETCD_ENDPOINTS")
	if raw == "" {
		t.Skip("LEIBERLUNA_ETCD_ENDPOINTS not set")
	}
	return strings.Split(raw, ",")
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 2*time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	service := "test-" + uuid.NewString()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Transport: "tcp", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Transport: "tcp", Weight: 5, Version: "1.0"}
	require.NoError(t, reg.Register(ctx, service, inst1, 10))
	require.NoError(t, reg.Register(ctx, service, inst2, 10))

	instances, err := reg.Discover(ctx, service)
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	require.NoError(t, reg.Deregister(ctx, service, inst1.Addr))
	instances, err = reg.Discover(ctx, service)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, inst2, instances[0])

	require.NoError(t, reg.Deregister(ctx, service, inst2.Addr))
}

func TestEtcdWatch(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 2*time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	service := "test-" + uuid.NewString()

	updates := reg.Watch(ctx, service)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, reg.Register(ctx, service, ServiceInstance{Addr: "127.0.0.1:9001"}, 10))

	select {
	case got := <-updates:
		require.Len(t, got, 1)
		assert.Equal(t, "127.0.0.1:9001", got[0].Addr)
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
	require.NoError(t, reg.Deregister(ctx, service, "127.0.0.1:9001"))
}
