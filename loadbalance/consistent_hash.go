package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"github.com/DANIELAGORA/leiberluna/registry"
)

// ConsistentHashBalancer maps keys to instances on a hash ring, so a client id keeps
// reconnecting to the same server while the instance set is stable.
//
// Each instance owns `replicas` virtual nodes hashed from "{addr}#{i}" to spread it
// evenly around the ring.
//
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A'
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu        sync.Mutex
	signature string // instance set the ring was built for
	ring      []uint32
	nodes     map[uint32]registry.ServiceInstance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

// Add places an instance onto the ring.
func (b *ConsistentHashBalancer) Add(instance registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(instance)
}

func (b *ConsistentHashBalancer) addLocked(instance registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick rebuilds the ring when the instance set changed, then finds the first
// virtual node at or after hash(key), wrapping around past the largest.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if instances != nil {
		if sig := signature(instances); sig != b.signature {
			b.ring = b.ring[:0]
			b.nodes = make(map[uint32]registry.ServiceInstance)
			for _, inst := range instances {
				b.addLocked(inst)
			}
			b.signature = sig
		}
	}
	if len(b.ring) == 0 {
		return nil, registry.ErrNoInstances
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func signature(instances []registry.ServiceInstance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}
