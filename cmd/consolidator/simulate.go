package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-energy-consolidator/pkg/controller"
	"github.com/opscart/k8s-energy-consolidator/pkg/kpi"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/reporter"
	"github.com/opscart/k8s-energy-consolidator/pkg/sampler"
)

var (
	simHosts            int
	simWorkloads        int
	simCycles           int
	simConsolidateEvery int
	simDelay            time.Duration
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a fixed number of control cycles with workload churn",
		Long: `Schedule the initial workloads, then run the control loop for a fixed
number of cycles. A new workload arrives a third of the way through and a
running one is removed two thirds of the way through.`,
		RunE: runSimulate,
	}

	cmd.Flags().IntVar(&simHosts, "hosts", sampleHosts, "Hosts in the sample cluster")
	cmd.Flags().IntVar(&simWorkloads, "workloads", sampleWorkloads, "Workloads in the sample cluster")
	cmd.Flags().IntVar(&simCycles, "cycles", 10, "Control cycles to run")
	cmd.Flags().IntVar(&simConsolidateEvery, "consolidate-every", 0, "Run consolidation every N cycles (default: CONSOLIDATION_EVERY)")
	cmd.Flags().DurationVar(&simDelay, "delay", 0, "Pause between cycles")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simCycles < 1 {
		return fmt.Errorf("--cycles must be >= 1")
	}
	if simConsolidateEvery > 0 {
		cfg.ConsolidationEvery = simConsolidateEvery
	}
	ctx := cmd.Context()

	st, err := buildStack(ctx, simHosts, simWorkloads)
	if err != nil {
		return err
	}
	s, err := openSinks()
	if err != nil {
		return err
	}
	defer s.Close()

	ctl, syn, err := st.newController(ctx, s)
	if err != nil {
		return err
	}

	schedulePending(ctx, ctl, st.pending)

	rng := rand.New(rand.NewSource(cfg.SamplerSeed + 1))
	for cycle := 1; cycle <= simCycles; cycle++ {
		report, err := ctl.Tick(ctx)
		if err != nil {
			return fmt.Errorf("cycle %d: %w", cycle, err)
		}
		printCycle(cycle, report)

		if cycle == simCycles/3 {
			arrive(ctx, ctl, cycle, rng)
		}
		if cycle == 2*simCycles/3 {
			depart(ctl, syn, rng)
		}

		if simDelay > 0 && cycle < simCycles {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(simDelay):
			}
		}
	}

	return renderFinal(ctx, st, ctl, s, "ENERGY CONSOLIDATION SIMULATION")
}

func printCycle(cycle int, report controller.TickReport) {
	var power float64
	active, workloads := 0, 0
	for _, t := range report.Snapshot {
		power += t.PowerWatts
		workloads += t.WorkloadCount
		if t.State != models.StateShutdown {
			active++
		}
	}
	info("Cycle %d/%d: power %.1f W | powered hosts %d | workloads %d", cycle, simCycles, power, active, workloads)

	if n := len(report.Sweep.HostsShutdown); n > 0 {
		info("  Shut down %d idle host(s): %v", n, report.Sweep.HostsShutdown)
	}
	if r := report.Consolidation; r != nil {
		if len(r.Migrations) > 0 {
			info("  Consolidation: %d migration(s), %d host(s) shut down, %.1f W saved",
				len(r.Migrations), len(r.HostsShutdown), r.EnergySavedWatts)
		} else {
			info("  No consolidation needed")
		}
		if r.Partial() {
			warn("Drain abandoned on %v, unplaced %v", r.AbandonedHosts, r.Unplaced)
		}
	}
	if report.SampleErr != nil {
		warn("Sampling: %v", report.SampleErr)
	}
}

// schedulePending places the workloads the cluster definition left unpinned.
// Unplaced workloads are reported and skipped.
func schedulePending(ctx context.Context, ctl *controller.Controller, pending []models.Workload) {
	if len(pending) == 0 {
		return
	}
	decisions, err := ctl.ScheduleBatch(ctx, pending)
	placed := 0
	for _, d := range decisions {
		if d.Placed() {
			placed++
		}
	}
	info("Successfully placed %d/%d workloads", placed, len(decisions))
	if err != nil {
		warn("%v", err)
	}
}

// arrive schedules one silver workload mid-run, powering a host back on
// when every running host is full
func arrive(ctx context.Context, ctl *controller.Controller, cycle int, rng *rand.Rand) {
	w := models.Workload{
		Name:     fmt.Sprintf("dynamic-%d", cycle),
		Image:    "nginx:latest",
		CPU:      round2(0.5 + rng.Float64()),
		MemoryGB: round2(1 + rng.Float64()),
		Tier:     models.TierSilver,
	}
	d, restarted, err := ctl.PlaceOrRestart(ctx, w)
	if restarted != "" {
		info("  Restarted %s to make room for %s", restarted, w.Name)
	}
	if err != nil {
		warn("New workload %s not placed: %v", w.Name, err)
		return
	}
	info("  New workload %s placed on %s (score %.3f)", d.Workload, d.HostID, d.Score)
}

// depart removes one running workload at random. A host left empty stops
// generating background load on the synthetic sampler.
func depart(ctl *controller.Controller, syn *sampler.Synthetic, rng *rand.Rand) {
	var running []string
	for _, h := range ctl.Registry().Hosts() {
		for _, w := range h.Workloads {
			running = append(running, w.Name)
		}
	}
	if len(running) == 0 {
		return
	}

	name := running[rng.Intn(len(running))]
	hostID, err := ctl.Remove(name)
	if err != nil {
		warn("Failed to remove %s: %v", name, err)
		return
	}
	info("  Removed workload %s from %s", name, hostID)

	if h, err := ctl.Registry().Host(hostID); err == nil && len(h.Workloads) == 0 && syn != nil {
		syn.Quiesce(hostID)
	}
}

// renderFinal prints the end-of-run report. Cycles come from the store so
// a Postgres-backed run shows history from earlier runs too.
func renderFinal(ctx context.Context, st *stack, ctl *controller.Controller, s *sinks, title string) error {
	summary := ctl.Registry().Summary()
	snapshot := ctl.Latest()
	k := kpi.Compute(snapshot, st.kpiConfig(ctx))
	cs := ctl.Engine().Stats()
	ps := ctl.Scheduler().Stats()

	cycles, err := s.store.ListConsolidations(ctx, 20)
	if err != nil {
		warn("Failed to load consolidation history: %v", err)
	}

	return reporter.New(format, os.Stdout).Render(&reporter.Report{
		Title:         title,
		Summary:       &summary,
		Snapshot:      snapshot,
		KPI:           &k,
		Consolidation: &cs,
		Placement:     &ps,
		Cycles:        cycles,
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
