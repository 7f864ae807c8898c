// Package consolidation drains lightly loaded hosts onto their peers and
// powers the emptied hosts off.
package consolidation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/scheduler"
)

// Config holds the consolidation tunables
type Config struct {
	// Threshold marks a host as a drain candidate when CPU and memory are both below it
	Threshold float64

	// MaxTargetUtilization caps the projected utilization of a destination host
	MaxTargetUtilization float64
}

// DefaultConfig returns threshold 0.3 and a 0.8 destination cap
func DefaultConfig() Config {
	return Config{Threshold: 0.3, MaxTargetUtilization: 0.8}
}

// Validate rejects NaN and values outside (0,1]
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: consolidation threshold %.3f outside (0,1]", models.ErrInvalidConfiguration, c.Threshold)
	}
	if math.IsNaN(c.MaxTargetUtilization) || c.MaxTargetUtilization <= 0 || c.MaxTargetUtilization > 1 {
		return fmt.Errorf("%w: max target utilization %.3f outside (0,1]", models.ErrInvalidConfiguration, c.MaxTargetUtilization)
	}
	return nil
}

// Engine runs consolidation cycles against a registry. All decision state
// lives in the registry; the engine only keeps cumulative statistics.
type Engine struct {
	reg    *cluster.Registry
	scorer *scheduler.Scorer
	cfg    Config
	now    func() time.Time

	mu    sync.Mutex
	stats models.ConsolidationStats
}

// New validates cfg and returns an Engine that ranks destinations with scorer
func New(reg *cluster.Registry, scorer *scheduler.Scorer, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		return nil, fmt.Errorf("%w: consolidation needs a scorer", models.ErrInvalidConfiguration)
	}
	return &Engine{reg: reg, scorer: scorer, cfg: cfg, now: time.Now}, nil
}

// Consolidate runs one full cycle:
//  1. hosts below the threshold on both dimensions become drain candidates
//  2. empty candidates are shut down
//  3. the others have their workloads migrated, largest CPU request first,
//     to the best scoring non-candidate host
//  4. a fully drained host is shut down; a host with a workload that found
//     no destination is abandoned and keeps what it still holds
//
// Migrations already made on an abandoned host are kept.
func (e *Engine) Consolidate() models.ConsolidationResult {
	result := models.ConsolidationResult{
		CycleID:    uuid.New().String(),
		StartedAt:  e.now(),
		Migrations: []models.Migration{},
	}

	preCycle := powerByHost(e.reg.SnapshotAll())
	var candidates []cluster.HostView
	isCandidate := make(map[string]bool)
	for _, h := range e.reg.Hosts() {
		if h.State == models.StateShutdown {
			continue
		}
		if h.Utilization.CPU < e.cfg.Threshold && h.Utilization.Memory < e.cfg.Threshold {
			candidates = append(candidates, h)
			isCandidate[h.ID()] = true
		}
	}

	for _, c := range candidates {
		if len(c.Workloads) > 0 && !e.drain(c, isCandidate, &result) {
			result.AbandonedHosts = append(result.AbandonedHosts, c.ID())
			continue
		}
		if err := e.reg.Shutdown(c.ID()); err != nil {
			klog.ErrorS(err, "Failed to shut down drained host", "host", c.ID())
			result.AbandonedHosts = append(result.AbandonedHosts, c.ID())
			continue
		}
		result.HostsShutdown = append(result.HostsShutdown, c.ID())
		result.EnergySavedWatts += c.Profile.IdleWatts
		result.PreCycleWatts += preCycle[c.ID()]
	}

	e.mu.Lock()
	e.stats.Cycles++
	e.stats.Migrations += len(result.Migrations)
	e.stats.AbandonedDrains += len(result.AbandonedHosts)
	e.accumulateLocked(result)
	e.mu.Unlock()

	klog.InfoS("Consolidation cycle complete",
		"cycle", result.CycleID,
		"candidates", len(candidates),
		"migrations", len(result.Migrations),
		"shutdown", len(result.HostsShutdown),
		"abandoned", len(result.AbandonedHosts),
		"savedWatts", result.EnergySavedWatts)
	return result
}

// drain moves every workload off host. It stops at the first workload with
// no destination and reports false.
func (e *Engine) drain(host cluster.HostView, isCandidate map[string]bool, result *models.ConsolidationResult) bool {
	workloads := append([]models.Workload(nil), host.Workloads...)
	sort.SliceStable(workloads, func(i, j int) bool {
		if workloads[i].CPU != workloads[j].CPU {
			return workloads[i].CPU > workloads[j].CPU
		}
		return workloads[i].Name < workloads[j].Name
	})

	for _, w := range workloads {
		m, ok := e.migrate(host.ID(), w, isCandidate)
		if !ok {
			result.Unplaced = append(result.Unplaced, w.Name)
			klog.V(2).InfoS("Abandoning drain, workload has no destination", "host", host.ID(), "workload", w.Name)
			return false
		}
		result.Migrations = append(result.Migrations, m)
	}
	return true
}

func (e *Engine) migrate(from string, w models.Workload, isCandidate map[string]bool) (models.Migration, bool) {
	var targets []cluster.HostView
	for _, h := range e.reg.EligibleTargets(w) {
		if isCandidate[h.ID()] || !e.withinTargetCap(h, w) {
			continue
		}
		targets = append(targets, h)
	}

	for _, c := range e.scorer.Rank(targets, w) {
		err := e.reg.Migrate(w.Name, from, c.Host.ID())
		if err == nil {
			klog.V(2).InfoS("Migrated workload", "workload", w.Name, "from", from, "to", c.Host.ID(), "score", c.Score)
			return models.Migration{Workload: w.Name, From: from, To: c.Host.ID(), Score: c.Score}, true
		}
		if !errors.Is(err, models.ErrCapacityExceeded) {
			klog.ErrorS(err, "Migration failed", "workload", w.Name, "from", from, "to", c.Host.ID())
		}
	}
	return models.Migration{}, false
}

func (e *Engine) withinTargetCap(h cluster.HostView, w models.Workload) bool {
	p := h.Projected(w)
	return math.Max(p.CPU, p.Memory) <= e.cfg.MaxTargetUtilization+1e-9
}

// ShutdownIdleHosts powers off every host that holds no workloads and is
// below the idle bound on both dimensions. It is the cheap sweep run on
// every monitoring tick.
func (e *Engine) ShutdownIdleHosts() models.ConsolidationResult {
	result := models.ConsolidationResult{
		CycleID:    uuid.New().String(),
		StartedAt:  e.now(),
		Migrations: []models.Migration{},
	}

	preCycle := powerByHost(e.reg.SnapshotAll())
	for _, h := range e.reg.IdleHosts() {
		if len(h.Workloads) > 0 {
			continue
		}
		if err := e.reg.Shutdown(h.ID()); err != nil {
			// lost a race with an assignment
			klog.V(2).InfoS("Skipping idle host", "host", h.ID(), "err", err)
			continue
		}
		result.HostsShutdown = append(result.HostsShutdown, h.ID())
		result.EnergySavedWatts += h.Profile.IdleWatts
		result.PreCycleWatts += preCycle[h.ID()]
	}

	e.mu.Lock()
	e.stats.IdleSweeps++
	e.accumulateLocked(result)
	e.mu.Unlock()

	if len(result.HostsShutdown) > 0 {
		klog.InfoS("Idle hosts shut down", "hosts", result.HostsShutdown, "savedWatts", result.EnergySavedWatts)
	}
	return result
}

func (e *Engine) accumulateLocked(r models.ConsolidationResult) {
	e.stats.HostsShutdown += len(r.HostsShutdown)
	e.stats.EnergySavedWatts += r.EnergySavedWatts
	e.stats.LastCycleAt = r.StartedAt
	e.stats.LastCycleSavedWatts = r.EnergySavedWatts
}

// Stats returns the cumulative statistics
func (e *Engine) Stats() models.ConsolidationStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func powerByHost(snapshot []models.Telemetry) map[string]float64 {
	out := make(map[string]float64, len(snapshot))
	for _, t := range snapshot {
		out[t.HostID] = t.PowerWatts
	}
	return out
}
