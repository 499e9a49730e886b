package client

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DANIELAGORA/leiberluna/loadbalance"
	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/registry"
)

func testRegistry() *CapabilityRegistry {
	return NewCapabilityRegistry([]message.Capability{
		{Name: "generate", Parameters: map[string]message.TypeHint{
			"prompt":      message.TypeString,
			"temperature": message.TypeNumber,
		}},
		{Name: "generate_document", Parameters: map[string]message.TypeHint{
			"document_type": message.TypeString,
			"case_data":     message.TypeObject,
			"tags":          message.TypeArray,
			"draft":         message.TypeBoolean,
		}},
	})
}

func TestCapabilityRegistryLookup(t *testing.T) {
	r := testRegistry()
	assert.Equal(t, 2, r.Len())

	c, ok := r.Lookup("generate")
	require.True(t, ok)
	assert.Equal(t, message.TypeString, c.Parameters["prompt"])

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestCapabilityRegistryIsSnapshot(t *testing.T) {
	caps := []message.Capability{{Name: "a", Parameters: map[string]message.TypeHint{"x": message.TypeString}}}
	r := NewCapabilityRegistry(caps)
	caps[0].Name = "b"
	caps[0].Parameters["x"] = message.TypeNumber

	list := r.List()
	assert.Equal(t, "a", list[0].Name)
	list[0].Name = "c"
	got, _ := r.Lookup("a")
	assert.Equal(t, message.TypeString, got.Parameters["x"])
	assert.Equal(t, "a", r.List()[0].Name)
}

func TestValidate(t *testing.T) {
	r := testRegistry()

	assert.NoError(t, r.Validate("generate", map[string]any{"prompt": "hola", "temperature": 0.2}))
	assert.NoError(t, r.Validate("generate", map[string]any{"temperature": 1, "extra": true}))
	assert.NoError(t, r.Validate("generate_document", map[string]any{
		"case_data": map[string]any{"defendant": "X"},
		"tags":      []string{"a"},
		"draft":     false,
	}))

	err := r.Validate("generate", map[string]any{"prompt": 3, "temperature": "hot"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"prompt"`)
	assert.Contains(t, err.Error(), `"temperature"`)

	assert.ErrorIs(t, r.Validate("nope", nil), ErrUnknownCapability)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, DefaultBackoff().Next(0))
	assert.Equal(t, 5*time.Second, DefaultBackoff().Next(10))

	b := ExponentialBackoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, time.Second, b.Next(10))

	j := ExponentialBackoff{Initial: 100 * time.Millisecond, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := j.Next(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestExponentialBackoffWithoutMaxNeverGoesNegative(t *testing.T) {
	b := ExponentialBackoff{Initial: time.Second, Multiplier: 2}
	prev := time.Duration(0)
	for attempt := 0; attempt < 2000; attempt++ {
		d := b.Next(attempt)
		require.Positive(t, d, "attempt %d", attempt)
		require.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, time.Duration(math.MaxInt64), b.Next(64))

	j := ExponentialBackoff{Initial: time.Second, Multiplier: 2, Jitter: 0.5}
	for attempt := 30; attempt < 200; attempt++ {
		assert.Positive(t, j.Next(attempt), "attempt %d", attempt)
	}

	assert.Zero(t, ExponentialBackoff{}.Next(5000))
}

func TestStaticResolver(t *testing.T) {
	addr, err := StaticResolver("ws://localhost:3002").Resolve(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3002", addr)
}

func TestDiscoveryResolver(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemoryRegistry()
	require.NoError(t, reg.Register(ctx, "leiberluna", registry.ServiceInstance{Addr: "ws://a:3002", Transport: "ws"}, 10))
	require.NoError(t, reg.Register(ctx, "leiberluna", registry.ServiceInstance{Addr: "b:9000", Transport: "tcp"}, 10))
	require.NoError(t, reg.Register(ctx, "leiberluna", registry.ServiceInstance{Addr: "ws://c:3002", Transport: "ws"}, 10))

	r := &DiscoveryResolver{Registry: reg, Service: "leiberluna", Transport: "ws", Balancer: &loadbalance.RoundRobinBalancer{}}
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		addr, err := r.Resolve(ctx, "client")
		require.NoError(t, err)
		seen[addr] = true
	}
	assert.Equal(t, map[string]bool{"ws://a:3002": true, "ws://c:3002": true}, seen)

	tcp := &DiscoveryResolver{Registry: reg, Service: "leiberluna", Transport: "tcp"}
	addr, err := tcp.Resolve(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, "b:9000", addr)

	missing := &DiscoveryResolver{Registry: reg, Service: "other", Transport: "ws"}
	_, err = missing.Resolve(ctx, "client")
	assert.ErrorIs(t, err, registry.ErrNoInstances)
}
