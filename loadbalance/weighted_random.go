package loadbalance

import (
	"math/rand/v2"

	"t2rpc/registry"
)

// WeightedRandomBalancer picks with probability proportional to Weight.
// Instances with a non-positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	// 计算总权重
	totalWeight := 0
	for _, v := range instances {
		totalWeight += weightOf(v)
	}

	// 生成一个随机数，范围是0到总权重
	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= weightOf(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func weightOf(i registry.ServiceInstance) int {
	if i.Weight <= 0 {
		return 1
	}
	return i.Weight
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
