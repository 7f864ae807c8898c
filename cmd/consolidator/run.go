package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var runDuration time.Duration

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the control loop until interrupted",
		Long: `Place pending workloads, then collect telemetry every MONITOR_INTERVAL,
shut down idle hosts on every tick and consolidate every CONSOLIDATION_EVERY
ticks. Snapshots and decisions go to the configured store, the gRPC sink and
the Prometheus exporter.`,
		RunE: runLoop,
	}

	cmd.Flags().DurationVar(&runDuration, "duration", 0, "Stop after this long (default: run until interrupted)")
	return cmd
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	st, err := buildStack(ctx, sampleHosts, sampleWorkloads)
	if err != nil {
		return err
	}
	s, err := openSinks()
	if err != nil {
		return err
	}
	defer s.Close()

	ctl, _, err := st.newController(ctx, s)
	if err != nil {
		return err
	}
	schedulePending(ctx, ctl, st.pending)

	info("Control loop running every %v, consolidating every %d ticks (Ctrl-C to stop)",
		cfg.MonitorInterval, cfg.ConsolidationEvery)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctl.Run(gctx)
	})
	if s.exporter != nil {
		g.Go(func() error {
			return s.exporter.Serve(gctx, cfg.MetricsAddr)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	klog.InfoS("Shutting down", "ticks", ctl.Ticks())
	return renderFinal(context.WithoutCancel(ctx), st, ctl, s, "ENERGY CONSOLIDATION RUN")
}
