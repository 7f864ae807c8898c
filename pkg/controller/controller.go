// Package controller runs the single control loop that owns registry
// mutation: collect samples, sweep idle hosts, consolidate on a coarser
// interval, publish the snapshot. Placement calls share the same lock.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/consolidation"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/scheduler"
)

// Options tune the loop
type Options struct {
	Interval           time.Duration
	ConsolidationEvery int // ticks between full consolidation passes
	Concurrency        int // parallel sampler calls
	ErrorBackoff       time.Duration
}

// DefaultOptions returns a 2s interval with consolidation every third tick
func DefaultOptions() Options {
	return Options{
		Interval:           2 * time.Second,
		ConsolidationEvery: 3,
		Concurrency:        cluster.DefaultCollectConcurrency,
		ErrorBackoff:       time.Second,
	}
}

// TickReport describes one control loop iteration
type TickReport struct {
	Tick          int
	Snapshot      []models.Telemetry
	Sweep         models.ConsolidationResult
	Consolidation *models.ConsolidationResult // nil on ticks without a full pass
	SampleErr     error
}

// Controller serializes every registry mutation
type Controller struct {
	mu        sync.Mutex
	reg       *cluster.Registry
	sampler   cluster.Sampler
	scheduler *scheduler.Scheduler
	engine    *consolidation.Engine
	sinks     []TelemetrySink
	opts      Options

	tick   int
	latest []models.Telemetry
}

// New wires a controller. Sinks are optional.
func New(reg *cluster.Registry, sampler cluster.Sampler, sched *scheduler.Scheduler,
	engine *consolidation.Engine, opts Options, sinks ...TelemetrySink) (*Controller, error) {
	if reg == nil || sampler == nil || sched == nil || engine == nil {
		return nil, fmt.Errorf("%w: controller needs a registry, sampler, scheduler and engine", models.ErrInvalidConfiguration)
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("%w: monitor interval must be > 0", models.ErrInvalidConfiguration)
	}
	if opts.ConsolidationEvery < 1 {
		return nil, fmt.Errorf("%w: consolidation interval must be >= 1 tick", models.ErrInvalidConfiguration)
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	return &Controller{
		reg:       reg,
		sampler:   sampler,
		scheduler: sched,
		engine:    engine,
		sinks:     sinks,
		opts:      opts,
	}, nil
}

// Run ticks until ctx is cancelled. A tick in progress when the stop signal
// arrives runs to completion.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	klog.InfoS("Control loop started", "interval", c.opts.Interval, "consolidationEvery", c.opts.ConsolidationEvery)
	if _, err := c.Tick(context.WithoutCancel(ctx)); err != nil {
		klog.ErrorS(err, "Initial tick failed")
	}

	for {
		select {
		case <-ctx.Done():
			klog.InfoS("Control loop stopped", "ticks", c.Ticks())
			return nil
		case <-ticker.C:
			if _, err := c.Tick(context.WithoutCancel(ctx)); err != nil {
				klog.ErrorS(err, "Tick failed")
				sleepWithContext(ctx, c.opts.ErrorBackoff)
			}
		}
	}
}

// Tick runs one iteration and publishes its snapshot. Sampler failures are
// reported in the TickReport and do not stop the decisions; sink failures
// are returned.
func (c *Controller) Tick(ctx context.Context) (TickReport, error) {
	report, err := c.decide(ctx)
	if err != nil {
		return report, err
	}
	return report, c.publish(ctx, report)
}

func (c *Controller) decide(ctx context.Context) (TickReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	report := TickReport{Tick: c.tick}

	_, err := c.reg.Collect(ctx, c.sampler, c.opts.Concurrency)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, ctxErr
	}
	if err != nil {
		klog.ErrorS(err, "Some hosts could not be sampled", "tick", c.tick)
		report.SampleErr = err
	}

	report.Sweep = c.engine.ShutdownIdleHosts()
	if c.tick%c.opts.ConsolidationEvery == 0 {
		result := c.engine.Consolidate()
		report.Consolidation = &result
	}

	report.Snapshot = c.reg.SnapshotAll()
	c.latest = report.Snapshot
	klog.V(2).InfoS("Tick complete", "tick", c.tick, "hosts", len(report.Snapshot))
	return report, nil
}

func (c *Controller) publish(ctx context.Context, report TickReport) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.Publish(ctx, report.Snapshot); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
		rs, ok := s.(ResultSink)
		if !ok {
			continue
		}
		for _, r := range []*models.ConsolidationResult{&report.Sweep, report.Consolidation} {
			if r == nil || (len(r.HostsShutdown) == 0 && len(r.Migrations) == 0 && !r.Partial()) {
				continue
			}
			if err := rs.RecordConsolidation(ctx, *r); err != nil {
				errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Place schedules one workload under the mutation lock
func (c *Controller) Place(ctx context.Context, w models.Workload) (models.PlacementDecision, error) {
	c.mu.Lock()
	d, err := c.scheduler.Place(w)
	c.mu.Unlock()

	c.recordPlacements(ctx, d)
	return d, err
}

// ScheduleBatch schedules workloads in order under the mutation lock
func (c *Controller) ScheduleBatch(ctx context.Context, workloads []models.Workload) ([]models.PlacementDecision, error) {
	c.mu.Lock()
	ds, err := c.scheduler.ScheduleBatch(workloads)
	c.mu.Unlock()

	c.recordPlacements(ctx, ds...)
	return ds, err
}

func (c *Controller) recordPlacements(ctx context.Context, decisions ...models.PlacementDecision) {
	for _, s := range c.sinks {
		rs, ok := s.(ResultSink)
		if !ok {
			continue
		}
		for _, d := range decisions {
			if err := rs.RecordPlacement(ctx, d); err != nil {
				klog.ErrorS(err, "Failed to record placement", "sink", s.Name(), "workload", d.Workload)
			}
		}
	}
}

// Remove unassigns a workload wherever it runs, returning the host it left
func (c *Controller) Remove(workloadName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hostID, err := c.reg.Locate(workloadName)
	if err != nil {
		return "", err
	}
	if _, err := c.reg.Unassign(hostID, workloadName); err != nil {
		return "", err
	}
	return hostID, nil
}

// PlaceOrRestart places w like Place. When no powered host has room it
// powers on the shut down host with the lowest idle draw that can hold w
// and tries once more. The second result names the restarted host.
func (c *Controller) PlaceOrRestart(ctx context.Context, w models.Workload) (models.PlacementDecision, string, error) {
	c.mu.Lock()
	d, err := c.scheduler.Place(w)
	var restarted string
	if errors.Is(err, models.ErrNoCapacity) {
		if id, ok := c.restartCandidate(w); ok {
			if err = c.reg.Restart(id); err == nil {
				restarted = id
				klog.InfoS("Restarted host for unplaced workload", "host", id, "workload", w.Name)
				d, err = c.scheduler.Place(w)
			}
		}
	}
	c.mu.Unlock()

	c.recordPlacements(ctx, d)
	return d, restarted, err
}

func (c *Controller) restartCandidate(w models.Workload) (string, bool) {
	var best *cluster.HostView
	hosts := c.reg.Hosts()
	for i := range hosts {
		h := &hosts[i]
		if h.State != models.StateShutdown {
			continue
		}
		if float64(h.Profile.Cores) < w.CPU || h.Profile.MemoryGB < w.MemoryGB {
			continue
		}
		if best == nil || h.Profile.IdleWatts < best.Profile.IdleWatts {
			best = h
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID(), true
}

// Latest returns the snapshot published by the most recent tick
func (c *Controller) Latest() []models.Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Telemetry(nil), c.latest...)
}

// Ticks returns how many ticks have run
func (c *Controller) Ticks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Registry exposes the registry for read-only reporting
func (c *Controller) Registry() *cluster.Registry {
	return c.reg
}

// Scheduler exposes the scheduler for statistics
func (c *Controller) Scheduler() *scheduler.Scheduler {
	return c.scheduler
}

// Engine exposes the consolidation engine for statistics
func (c *Controller) Engine() *consolidation.Engine {
	return c.engine
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
