package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-energy-consolidator/pkg/kpi"
	"github.com/opscart/k8s-energy-consolidator/pkg/reporter"
)

func newKPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kpi",
		Short: "Sample the cluster once and report energy KPIs",
		Long: `Load the cluster, place its pending workloads, take one telemetry sample
of every host and report power, utilization, energy, cost and carbon.
Cost and carbon use the regional tariff when CLOUD_PROVIDER is set or the
cluster is discovered from Kubernetes.`,
		RunE: runKPI,
	}
}

func runKPI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := buildStack(ctx, sampleHosts, sampleWorkloads)
	if err != nil {
		return err
	}
	smp, _, err := st.newSampler(ctx)
	if err != nil {
		return err
	}
	if len(st.pending) > 0 {
		if _, err := st.sched.ScheduleBatch(st.pending); err != nil {
			warn("%v", err)
		}
	}

	snapshot, err := st.reg.Collect(ctx, smp, cfg.CollectConcurrency)
	if err != nil {
		warn("Some hosts could not be sampled: %v", err)
	}
	summary := st.reg.Summary()
	k := kpi.Compute(snapshot, st.kpiConfig(ctx))

	return reporter.New(format, os.Stdout).Render(&reporter.Report{
		Title:    "ENERGY KPIs",
		Summary:  &summary,
		Snapshot: snapshot,
		KPI:      &k,
	})
}
