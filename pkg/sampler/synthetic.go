package sampler

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/power"
)

// SyntheticOptions shape the background load of the synthetic feed
type SyntheticOptions struct {
	Seed int64

	// initial background load is drawn uniformly from these ranges
	InitialCPUMin, InitialCPUMax float64
	InitialMemMin, InitialMemMax float64

	// Step bounds the per-sample random walk; MaxBackground caps it
	Step          float64
	MaxBackground float64
}

// DefaultSyntheticOptions starts hosts at 10-30% CPU and 20-40% memory
func DefaultSyntheticOptions(seed int64) SyntheticOptions {
	return SyntheticOptions{
		Seed:          seed,
		InitialCPUMin: 0.1,
		InitialCPUMax: 0.3,
		InitialMemMin: 0.2,
		InitialMemMax: 0.4,
		Step:          0.05,
		MaxBackground: 0.4,
	}
}

// Synthetic reports the share of a host claimed by its workloads plus a
// per-host background load that drifts as a bounded random walk. Each host
// draws from its own stream derived from the seed and the host id, so output
// does not depend on the order hosts are sampled in.
type Synthetic struct {
	mu         sync.Mutex
	opts       SyntheticOptions
	rngs       map[string]*rand.Rand
	background map[string]models.Utilization
}

// NewSynthetic creates a seeded synthetic sampler
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	return &Synthetic{
		opts:       opts,
		rngs:       make(map[string]*rand.Rand),
		background: make(map[string]models.Utilization),
	}
}

// Sample implements cluster.Sampler
func (s *Synthetic) Sample(_ context.Context, host cluster.HostView) (models.Utilization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rng := s.rngFor(host.ID())
	bg, ok := s.background[host.ID()]
	if !ok {
		bg = models.Utilization{
			CPU:    uniform(rng, s.opts.InitialCPUMin, s.opts.InitialCPUMax),
			Memory: uniform(rng, s.opts.InitialMemMin, s.opts.InitialMemMax),
		}
	} else {
		bg.CPU = s.walk(rng, bg.CPU)
		bg.Memory = s.walk(rng, bg.Memory)
	}
	s.background[host.ID()] = bg

	return models.Utilization{
		CPU:    power.Clamp01(host.AllocatedCPU/float64(host.Profile.Cores) + bg.CPU),
		Memory: power.Clamp01(host.AllocatedMemoryGB/host.Profile.MemoryGB + bg.Memory),
	}, nil
}

// Quiesce drops the background load of a host to zero, as if its last
// external process exited
func (s *Synthetic) Quiesce(hostID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background[hostID] = models.Utilization{}
}

func (s *Synthetic) rngFor(hostID string) *rand.Rand {
	if r, ok := s.rngs[hostID]; ok {
		return r
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(hostID))
	r := rand.New(rand.NewSource(s.opts.Seed ^ int64(h.Sum64())))
	s.rngs[hostID] = r
	return r
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func (s *Synthetic) walk(rng *rand.Rand, v float64) float64 {
	v += uniform(rng, -s.opts.Step, s.opts.Step)
	if v < 0 {
		return 0
	}
	if v > s.opts.MaxBackground {
		return s.opts.MaxBackground
	}
	return v
}
