package loadbalance

import (
	"math/rand/v2"

	"github.com/DANIELAGORA/leiberluna/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to its
// Weight. Instances without a positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance, _ string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, registry.ErrNoInstances
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += weightOf(v)
	}

	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= weightOf(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weightOf(inst registry.ServiceInstance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}
