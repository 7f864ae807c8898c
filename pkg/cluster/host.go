package cluster

import (
	"math"
	"sort"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/power"
)

// capacityEpsilon absorbs float drift when requests exactly fill a host
const capacityEpsilon = 1e-9

// hostState is the mutable record of one host. Only Registry touches it.
type hostState struct {
	profile    models.HostProfile
	util       models.Utilization
	allocCPU   float64
	allocMemGB float64
	workloads  map[string]models.Workload
	state      models.LifecycleState
	observedAt time.Time
}

func newHostState(p models.HostProfile, at time.Time) *hostState {
	return &hostState{
		profile:    p,
		workloads:  make(map[string]models.Workload),
		state:      models.StateIdle,
		observedAt: at,
	}
}

func (h *hostState) view() HostView {
	wls := make([]models.Workload, 0, len(h.workloads))
	for _, w := range h.workloads {
		wls = append(wls, w)
	}
	sort.Slice(wls, func(i, j int) bool { return wls[i].Name < wls[j].Name })

	return HostView{
		Profile:           h.profile,
		Utilization:       h.util,
		AllocatedCPU:      h.allocCPU,
		AllocatedMemoryGB: h.allocMemGB,
		Workloads:         wls,
		State:             h.state,
		ObservedAt:        h.observedAt,
	}
}

func (h *hostState) add(w models.Workload) {
	h.workloads[w.Name] = w
	h.allocCPU += w.CPU
	h.allocMemGB += w.MemoryGB
	h.util.CPU += w.CPU / float64(h.profile.Cores)
	h.util.Memory += w.MemoryGB / h.profile.MemoryGB
}

func (h *hostState) remove(w models.Workload) {
	delete(h.workloads, w.Name)
	h.allocCPU = math.Max(0, h.allocCPU-w.CPU)
	h.allocMemGB = math.Max(0, h.allocMemGB-w.MemoryGB)
	h.util.CPU = math.Max(0, h.util.CPU-w.CPU/float64(h.profile.Cores))
	h.util.Memory = math.Max(0, h.util.Memory-w.MemoryGB/h.profile.MemoryGB)
	if len(h.workloads) == 0 {
		h.allocCPU, h.allocMemGB = 0, 0
	}
}

// HostView is a read-only copy of a host handed to the decision engines and samplers
type HostView struct {
	Profile           models.HostProfile
	Utilization       models.Utilization
	AllocatedCPU      float64
	AllocatedMemoryGB float64
	Workloads         []models.Workload // sorted by name
	State             models.LifecycleState
	ObservedAt        time.Time
}

// ID returns the host identifier
func (v HostView) ID() string { return v.Profile.ID }

// ResidualCPU returns unallocated cores
func (v HostView) ResidualCPU() float64 {
	return float64(v.Profile.Cores) - v.AllocatedCPU
}

// ResidualMemoryGB returns unallocated memory
func (v HostView) ResidualMemoryGB() float64 {
	return v.Profile.MemoryGB - v.AllocatedMemoryGB
}

// Projected returns the utilization the host would reach after taking w
func (v HostView) Projected(w models.Workload) models.Utilization {
	return models.Utilization{
		CPU:    v.Utilization.CPU + w.CPU/float64(v.Profile.Cores),
		Memory: v.Utilization.Memory + w.MemoryGB/v.Profile.MemoryGB,
	}
}

// Fits reports whether w can be assigned without exceeding capacity on either dimension
func (v HostView) Fits(w models.Workload) bool {
	if v.AllocatedCPU+w.CPU > float64(v.Profile.Cores)+capacityEpsilon {
		return false
	}
	if v.AllocatedMemoryGB+w.MemoryGB > v.Profile.MemoryGB+capacityEpsilon {
		return false
	}
	p := v.Projected(w)
	return p.CPU <= 1+capacityEpsilon && p.Memory <= 1+capacityEpsilon
}

// Headroom is the free share of the busier dimension
func (v HostView) Headroom() float64 {
	return 1 - power.Clamp01(math.Max(v.Utilization.CPU, v.Utilization.Memory))
}

// Available reports whether the host may receive new workloads
func (v HostView) Available() bool {
	return v.State == models.StateActive || v.State == models.StateIdle
}
