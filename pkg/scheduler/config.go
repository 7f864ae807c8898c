package scheduler

import (
	"fmt"
	"math"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// weightSumTolerance absorbs float drift in weights read from env or YAML
const weightSumTolerance = 1e-9

// Weights of the placement objective. They must sum to 1.
type Weights struct {
	Power       float64
	Utilization float64
	SLA         float64
}

// DefaultWeights returns 0.4 / 0.4 / 0.2
func DefaultWeights() Weights {
	return Weights{Power: 0.4, Utilization: 0.4, SLA: 0.2}
}

// Validate rejects negative weights and weights that do not sum to 1
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"power": w.Power, "utilization": w.Utilization, "sla": w.SLA} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s weight %.3f outside [0,1]", models.ErrInvalidConfiguration, name, v)
		}
	}
	if sum := w.Power + w.Utilization + w.SLA; math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", models.ErrInvalidConfiguration, sum)
	}
	return nil
}

// Config holds the scheduler tunables
type Config struct {
	Weights Weights

	// TargetBandLow and TargetBandHigh bound the utilization the balance term rewards
	TargetBandLow  float64
	TargetBandHigh float64

	// OverloadBound is the projected utilization at which gold workloads get no SLA affinity
	OverloadBound float64

	// RecentPlacements is how many decisions Stats keeps
	RecentPlacements int
}

// DefaultConfig returns the defaults used by the controller
func DefaultConfig() Config {
	return Config{
		Weights:          DefaultWeights(),
		TargetBandLow:    0.6,
		TargetBandHigh:   0.7,
		OverloadBound:    0.9,
		RecentPlacements: 10,
	}
}

// Validate checks weights, band ordering and the overload bound
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if math.IsNaN(c.TargetBandLow) || math.IsNaN(c.TargetBandHigh) ||
		c.TargetBandLow <= 0 || c.TargetBandHigh >= 1 || c.TargetBandLow > c.TargetBandHigh {
		return fmt.Errorf("%w: target band [%.2f, %.2f] must satisfy 0 < low <= high < 1",
			models.ErrInvalidConfiguration, c.TargetBandLow, c.TargetBandHigh)
	}
	if math.IsNaN(c.OverloadBound) || c.OverloadBound <= 0 || c.OverloadBound > 1 {
		return fmt.Errorf("%w: overload bound %.2f outside (0,1]", models.ErrInvalidConfiguration, c.OverloadBound)
	}
	if c.RecentPlacements < 0 {
		return fmt.Errorf("%w: recent placements must be >= 0", models.ErrInvalidConfiguration)
	}
	return nil
}
