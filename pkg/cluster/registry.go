// Package cluster owns the host registry: per-host utilization, workload
// assignment and lifecycle state, plus the aggregate queries the decision
// engines run against it.
package cluster

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/power"
)

// Registry owns every host state. All mutation goes through its methods.
type Registry struct {
	mu         sync.RWMutex
	hosts      map[string]*hostState
	placement  map[string]string // workload name -> host id
	thresholds Thresholds
	model      *power.Model
	now        func() time.Time
}

// Option customizes a Registry
type Option func(*Registry)

// WithClock overrides time.Now for observation timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithPowerModel overrides the derived metric coefficients used for snapshots
func WithPowerModel(m *power.Model) Option {
	return func(r *Registry) { r.model = m }
}

// NewRegistry creates an empty registry
func NewRegistry(th Thresholds, opts ...Option) (*Registry, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		hosts:      make(map[string]*hostState),
		placement:  make(map[string]string),
		thresholds: th,
		model:      power.DefaultModel(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Thresholds returns the lifecycle bounds in use
func (r *Registry) Thresholds() Thresholds {
	return r.thresholds
}

// Register adds a host in the IDLE state with zero utilization
func (r *Registry) Register(p models.HostProfile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfiguration, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.hosts[p.ID]; exists {
		return fmt.Errorf("%w: %s", models.ErrDuplicateHost, p.ID)
	}
	r.hosts[p.ID] = newHostState(p, r.now())
	return nil
}

// Assign places w on a host. It fails with ErrCapacityExceeded when the
// projected utilization or the summed requests would exceed the host capacity.
func (r *Registry) Assign(hostID string, w models.Workload) error {
	if err := w.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.hostLocked(hostID)
	if err != nil {
		return err
	}
	if current, exists := r.placement[w.Name]; exists {
		return fmt.Errorf("%w: %s is on %s", models.ErrDuplicateWorkload, w.Name, current)
	}
	return r.assignLocked(h, w)
}

func (r *Registry) assignLocked(h *hostState, w models.Workload) error {
	if h.state == models.StateShutdown {
		return fmt.Errorf("%w: %s", models.ErrHostShutdown, h.profile.ID)
	}
	if !h.view().Fits(w) {
		return fmt.Errorf("%w: %s (%.2f cores, %.2fGB) on %s (%.2f/%d cores, %.2f/%.2fGB allocated)",
			models.ErrCapacityExceeded, w.Name, w.CPU, w.MemoryGB, h.profile.ID,
			h.allocCPU, h.profile.Cores, h.allocMemGB, h.profile.MemoryGB)
	}
	h.add(w)
	h.state = r.thresholds.Classify(h.util)
	r.placement[w.Name] = h.profile.ID
	return nil
}

// Unassign removes a workload from the host that holds it
func (r *Registry) Unassign(hostID, workloadName string) (models.Workload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.hostLocked(hostID)
	if err != nil {
		return models.Workload{}, err
	}
	return r.unassignLocked(h, workloadName)
}

func (r *Registry) unassignLocked(h *hostState, workloadName string) (models.Workload, error) {
	w, ok := h.workloads[workloadName]
	if !ok {
		return models.Workload{}, fmt.Errorf("%w: %s on %s", models.ErrUnknownWorkload, workloadName, h.profile.ID)
	}
	h.remove(w)
	if h.state != models.StateShutdown {
		h.state = r.thresholds.Classify(h.util)
	}
	delete(r.placement, workloadName)
	return w, nil
}

// Migrate moves a workload between hosts in one step. On failure the
// workload stays where it was.
func (r *Registry) Migrate(workloadName, fromID, toID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, err := r.hostLocked(fromID)
	if err != nil {
		return err
	}
	to, err := r.hostLocked(toID)
	if err != nil {
		return err
	}
	w, ok := from.workloads[workloadName]
	if !ok {
		return fmt.Errorf("%w: %s on %s", models.ErrUnknownWorkload, workloadName, fromID)
	}
	if fromID == toID {
		return nil
	}
	if _, err := r.unassignLocked(from, workloadName); err != nil {
		return err
	}
	if err := r.assignLocked(to, w); err != nil {
		// put it back; the source had room for it a moment ago
		from.add(w)
		from.state = r.thresholds.Classify(from.util)
		r.placement[w.Name] = fromID
		return err
	}
	return nil
}

// Sample records an observation and recomputes the lifecycle state.
// Sampling a SHUTDOWN host is a no-op.
func (r *Registry) Sample(hostID string, u models.Utilization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.hostLocked(hostID)
	if err != nil {
		return err
	}
	r.sampleLocked(h, u, r.now())
	return nil
}

func (r *Registry) sampleLocked(h *hostState, u models.Utilization, at time.Time) {
	if h.state == models.StateShutdown {
		return
	}
	h.util = models.Utilization{CPU: power.Clamp01(u.CPU), Memory: power.Clamp01(u.Memory)}
	h.observedAt = at
	h.state = r.thresholds.Classify(h.util)
}

// ApplySamples records a batch of observations and returns the resulting
// snapshot, all under one lock so readers never see a partial update.
func (r *Registry) ApplySamples(samples map[string]models.Utilization) ([]models.Telemetry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range samples {
		if _, ok := r.hosts[id]; !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownHost, id)
		}
	}
	at := r.now()
	for id, u := range samples {
		r.sampleLocked(r.hosts[id], u, at)
	}
	return r.snapshotLocked(at), nil
}

// Shutdown powers a host off. Hosts holding workloads are refused.
func (r *Registry) Shutdown(hostID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.hostLocked(hostID)
	if err != nil {
		return err
	}
	if len(h.workloads) > 0 {
		return fmt.Errorf("%w: %s holds %d", models.ErrHostBusy, hostID, len(h.workloads))
	}
	h.state = models.StateShutdown
	h.util = models.Utilization{}
	h.observedAt = r.now()
	return nil
}

// Restart brings a SHUTDOWN host back as IDLE. It is the operator hook for
// powering hosts on; the decision engines never call it.
func (r *Registry) Restart(hostID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.hostLocked(hostID)
	if err != nil {
		return err
	}
	if h.state != models.StateShutdown {
		return nil
	}
	h.state = models.StateIdle
	h.util = models.Utilization{}
	h.observedAt = r.now()
	return nil
}

// Host returns a copy of one host
func (r *Registry) Host(hostID string) (HostView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, err := r.hostLocked(hostID)
	if err != nil {
		return HostView{}, err
	}
	return h.view(), nil
}

// Hosts returns copies of every host ordered by id
func (r *Registry) Hosts() []HostView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]HostView, 0, len(r.hosts))
	for _, id := range r.sortedIDsLocked() {
		out = append(out, r.hosts[id].view())
	}
	return out
}

// Locate returns the host currently holding a workload
func (r *Registry) Locate(workloadName string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.placement[workloadName]
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrUnknownWorkload, workloadName)
	}
	return id, nil
}

// SnapshotAll produces one telemetry record per host, ordered by host id
func (r *Registry) SnapshotAll() []models.Telemetry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked(r.now())
}

func (r *Registry) snapshotLocked(at time.Time) []models.Telemetry {
	out := make([]models.Telemetry, 0, len(r.hosts))
	for _, id := range r.sortedIDsLocked() {
		h := r.hosts[id]
		out = append(out, r.model.Snapshot(at, h.profile, h.util, len(h.workloads), h.state))
	}
	return out
}

// IdleHosts returns non-shutdown hosts below the idle bound on both dimensions
func (r *Registry) IdleHosts() []HostView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []HostView
	for _, id := range r.sortedIDsLocked() {
		h := r.hosts[id]
		if h.state == models.StateShutdown {
			continue
		}
		if h.util.CPU < r.thresholds.Idle && h.util.Memory < r.thresholds.Idle {
			out = append(out, h.view())
		}
	}
	return out
}

// EligibleTargets returns ACTIVE or IDLE hosts with room for w, ordered by id
func (r *Registry) EligibleTargets(w models.Workload) []HostView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []HostView
	for _, id := range r.sortedIDsLocked() {
		v := r.hosts[id].view()
		if v.Available() && v.Fits(w) {
			out = append(out, v)
		}
	}
	return out
}

// Summary aggregates the registry for reporting
func (r *Registry) Summary() models.ClusterSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	at := r.now()
	s := models.ClusterSummary{
		TotalHosts:   len(r.hosts),
		HostsByState: make(map[models.LifecycleState]int),
		TakenAt:      at,
	}
	for _, t := range r.snapshotLocked(at) {
		h := r.hosts[t.HostID]
		s.HostsByState[h.state]++
		s.TotalCores += h.profile.Cores
		s.TotalMemoryGB += h.profile.MemoryGB
		s.AllocatedCores += h.allocCPU
		s.AllocatedMemGB += h.allocMemGB
		s.TotalWorkloads += len(h.workloads)
		s.TotalPowerWatts += t.PowerWatts
	}
	return s
}

// Len returns the number of registered hosts
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}

func (r *Registry) hostLocked(id string) (*hostState, error) {
	h, ok := r.hosts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownHost, id)
	}
	return h, nil
}

func (r *Registry) sortedIDsLocked() []string {
	ids := make([]string, 0, len(r.hosts))
	for id := range r.hosts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
