package cluster

import (
	"fmt"
	"math"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Thresholds bound the lifecycle classification of a sampled host
type Thresholds struct {
	Idle     float64 // both dimensions below => IDLE
	Overload float64 // either dimension above => OVERLOADED
}

// DefaultThresholds returns idle 0.1 / overload 0.9
func DefaultThresholds() Thresholds {
	return Thresholds{Idle: 0.1, Overload: 0.9}
}

// Validate rejects NaN, bounds outside [0,1] or an idle bound above the overload bound
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Idle) || t.Idle < 0 || t.Idle > 1 {
		return fmt.Errorf("%w: idle threshold %.3f outside [0,1]", models.ErrInvalidConfiguration, t.Idle)
	}
	if math.IsNaN(t.Overload) || t.Overload < 0 || t.Overload > 1 {
		return fmt.Errorf("%w: overload threshold %.3f outside [0,1]", models.ErrInvalidConfiguration, t.Overload)
	}
	if t.Idle >= t.Overload {
		return fmt.Errorf("%w: idle threshold %.3f must be below overload threshold %.3f",
			models.ErrInvalidConfiguration, t.Idle, t.Overload)
	}
	return nil
}

// Classify applies the lifecycle rule to one utilization observation
func (t Thresholds) Classify(u models.Utilization) models.LifecycleState {
	if u.CPU < t.Idle && u.Memory < t.Idle {
		return models.StateIdle
	}
	if u.CPU > t.Overload || u.Memory > t.Overload {
		return models.StateOverloaded
	}
	return models.StateActive
}
