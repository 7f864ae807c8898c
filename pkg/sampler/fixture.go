// Package sampler provides in-process utilization sources: fixed fixtures
// for tests and a seeded synthetic feed for simulations.
package sampler

import (
	"context"
	"sync"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Fixture returns preset utilization per host. Hosts without a preset
// report the utilization the registry already holds for them.
type Fixture struct {
	mu     sync.RWMutex
	values map[string]models.Utilization
	errs   map[string]error
}

// NewFixture creates a fixture from a host id -> utilization map
func NewFixture(values map[string]models.Utilization) *Fixture {
	f := &Fixture{
		values: make(map[string]models.Utilization, len(values)),
		errs:   make(map[string]error),
	}
	for id, u := range values {
		f.values[id] = u
	}
	return f
}

// Set replaces the preset for one host
func (f *Fixture) Set(hostID string, u models.Utilization) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[hostID] = u
}

// Fail makes the next samples of hostID return err; nil clears it
func (f *Fixture) Fail(hostID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, hostID)
		return
	}
	f.errs[hostID] = err
}

// Sample implements cluster.Sampler
func (f *Fixture) Sample(_ context.Context, host cluster.HostView) (models.Utilization, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err, ok := f.errs[host.ID()]; ok {
		return models.Utilization{}, err
	}
	if u, ok := f.values[host.ID()]; ok {
		return u, nil
	}
	return host.Utilization, nil
}
