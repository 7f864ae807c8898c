package models

import "fmt"

// LifecycleState represents the power/lifecycle state of a host
type LifecycleState string

const (
	StateActive     LifecycleState = "ACTIVE"
	StateIdle       LifecycleState = "IDLE"
	StateOverloaded LifecycleState = "OVERLOADED"
	StateShutdown   LifecycleState = "SHUTDOWN"
)

// HostProfile is the immutable hardware and power description of a host
type HostProfile struct {
	ID        string  `json:"id" yaml:"id"`
	Cores     int     `json:"cores" yaml:"cores"`
	MemoryGB  float64 `json:"memory_gb" yaml:"memory_gb"`
	IdleWatts float64 `json:"idle_watts" yaml:"idle_watts"`
	MaxWatts  float64 `json:"max_watts" yaml:"max_watts"`
}

// Validate enforces idle < max power and a usable capacity
func (p HostProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("host id must not be empty")
	}
	if p.Cores < 1 {
		return fmt.Errorf("host %s: core count must be >= 1, got %d", p.ID, p.Cores)
	}
	if p.MemoryGB <= 0 {
		return fmt.Errorf("host %s: memory must be > 0, got %.2f", p.ID, p.MemoryGB)
	}
	if p.IdleWatts < 0 {
		return fmt.Errorf("host %s: idle power must be >= 0", p.ID)
	}
	if p.IdleWatts >= p.MaxWatts {
		return fmt.Errorf("host %s: idle power %.1fW must be below max power %.1fW", p.ID, p.IdleWatts, p.MaxWatts)
	}
	return nil
}

// DynamicRange returns the watts between idle and full load
func (p HostProfile) DynamicRange() float64 {
	return p.MaxWatts - p.IdleWatts
}

// Utilization is one observation of CPU and memory utilization, both in [0,1]
type Utilization struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
}
