package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

const namespace = "energy"

var states = []models.LifecycleState{
	models.StateActive,
	models.StateIdle,
	models.StateOverloaded,
	models.StateShutdown,
}

// Exporter publishes the controller's snapshots and decisions as Prometheus metrics
type Exporter struct {
	registry *prometheus.Registry

	hostPower    *prometheus.GaugeVec
	hostCPU      *prometheus.GaugeVec
	hostMemory   *prometheus.GaugeVec
	hostState    *prometheus.GaugeVec
	hostLoad     *prometheus.GaugeVec
	clusterPower prometheus.Gauge

	cycles      prometheus.Counter
	migrations  prometheus.Counter
	shutdowns   prometheus.Counter
	abandoned   prometheus.Counter
	savedWatts  prometheus.Counter
	placements  *prometheus.CounterVec
	placeScores prometheus.Histogram
}

// NewExporter registers all collectors on a private registry
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		hostPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_power_watts",
			Help:      "Modelled power draw of a host.",
		}, []string{"host"}),
		hostCPU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_cpu_utilization",
			Help:      "CPU utilization of a host in [0,1].",
		}, []string{"host"}),
		hostMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_memory_utilization",
			Help:      "Memory utilization of a host in [0,1].",
		}, []string{"host"}),
		hostState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_state",
			Help:      "1 for the lifecycle state a host is in, 0 otherwise.",
		}, []string{"host", "state"}),
		hostLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_workloads",
			Help:      "Workloads assigned to a host.",
		}, []string{"host"}),
		clusterPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_power_watts",
			Help:      "Total modelled power draw of the cluster.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_cycles_total",
			Help:      "Recorded consolidation cycles and idle sweeps.",
		}),
		migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Workloads migrated by consolidation.",
		}),
		shutdowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hosts_shutdown_total",
			Help:      "Hosts powered off by consolidation or idle sweeps.",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abandoned_drains_total",
			Help:      "Drain candidates that kept at least one workload.",
		}),
		savedWatts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "energy_saved_watts_total",
			Help:      "Sum of baseline power removed by shutdowns.",
		}),
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_total",
			Help:      "Scheduler decisions by SLA tier and result.",
		}, []string{"tier", "result"}),
		placeScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "placement_score",
			Help:      "Objective score of placed workloads.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	e.registry.MustRegister(
		e.hostPower, e.hostCPU, e.hostMemory, e.hostState, e.hostLoad, e.clusterPower,
		e.cycles, e.migrations, e.shutdowns, e.abandoned, e.savedWatts,
		e.placements, e.placeScores,
	)
	return e
}

func (e *Exporter) Name() string {
	return "prometheus"
}

// Registry exposes the private registry so other collectors can be added
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Publish(_ context.Context, snapshot []models.Telemetry) error {
	var total float64
	for _, t := range snapshot {
		e.hostPower.WithLabelValues(t.HostID).Set(t.PowerWatts)
		e.hostCPU.WithLabelValues(t.HostID).Set(t.CPUUtilization)
		e.hostMemory.WithLabelValues(t.HostID).Set(t.MemoryUtilization)
		e.hostLoad.WithLabelValues(t.HostID).Set(float64(t.WorkloadCount))
		for _, s := range states {
			v := 0.0
			if s == t.State {
				v = 1
			}
			e.hostState.WithLabelValues(t.HostID, string(s)).Set(v)
		}
		total += t.PowerWatts
	}
	e.clusterPower.Set(total)
	return nil
}

func (e *Exporter) RecordConsolidation(_ context.Context, r models.ConsolidationResult) error {
	e.cycles.Inc()
	e.migrations.Add(float64(len(r.Migrations)))
	e.shutdowns.Add(float64(len(r.HostsShutdown)))
	e.abandoned.Add(float64(len(r.AbandonedHosts)))
	e.savedWatts.Add(r.EnergySavedWatts)
	return nil
}

func (e *Exporter) RecordPlacement(_ context.Context, d models.PlacementDecision) error {
	result := "placed"
	if !d.Placed() {
		result = "unplaced"
	}
	e.placements.WithLabelValues(string(d.Tier), result).Inc()
	if d.Placed() {
		e.placeScores.Observe(d.Score)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	klog.InfoS("Serving Prometheus metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
