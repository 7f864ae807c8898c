package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/config"
	"github.com/opscart/k8s-energy-consolidator/pkg/consolidation"
	"github.com/opscart/k8s-energy-consolidator/pkg/controller"
	"github.com/opscart/k8s-energy-consolidator/pkg/datasource"
	"github.com/opscart/k8s-energy-consolidator/pkg/kpi"
	"github.com/opscart/k8s-energy-consolidator/pkg/loader"
	"github.com/opscart/k8s-energy-consolidator/pkg/metrics"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/pricing"
	"github.com/opscart/k8s-energy-consolidator/pkg/sampler"
	"github.com/opscart/k8s-energy-consolidator/pkg/scanner"
	"github.com/opscart/k8s-energy-consolidator/pkg/scheduler"
	"github.com/opscart/k8s-energy-consolidator/pkg/storage"
	"github.com/opscart/k8s-energy-consolidator/pkg/stream"
)

const (
	sampleHosts     = 5
	sampleWorkloads = 15
)

// stack is the registry plus the decision components built over it
type stack struct {
	reg     *cluster.Registry
	sched   *scheduler.Scheduler
	engine  *consolidation.Engine
	scan    *scanner.Scanner // set with --kubernetes
	pending []models.Workload
}

// buildStack loads the cluster from Kubernetes, a file, or the built-in
// sample of numHosts hosts and numWorkloads workloads
func buildStack(ctx context.Context, numHosts, numWorkloads int) (*stack, error) {
	reg, err := cluster.NewRegistry(cfg.Thresholds())
	if err != nil {
		return nil, err
	}
	st := &stack{reg: reg}

	switch {
	case useKubernetes:
		if err := st.discover(ctx); err != nil {
			return nil, err
		}
	case clusterFile != "":
		cf, err := loader.Load(clusterFile)
		if err != nil {
			return nil, err
		}
		if st.pending, err = cf.Apply(reg); err != nil {
			return nil, err
		}
		info("Loaded %d hosts and %d workloads from %s", len(cf.Hosts), len(cf.Workloads), clusterFile)
	default:
		rng := rand.New(rand.NewSource(cfg.SamplerSeed))
		cf := loader.Sample(numHosts, numWorkloads, rng)
		if st.pending, err = cf.Apply(reg); err != nil {
			return nil, err
		}
		info("Built sample cluster with %d hosts and %d workloads", len(cf.Hosts), len(cf.Workloads))
	}

	if st.sched, err = scheduler.New(reg, cfg.SchedulerConfig()); err != nil {
		return nil, err
	}
	if st.engine, err = consolidation.New(reg, st.sched.Scorer(), cfg.ConsolidationConfig()); err != nil {
		return nil, err
	}
	return st, nil
}

// discover registers schedulable nodes and pins running pods to their nodes
func (st *stack) discover(ctx context.Context) error {
	scan, err := scanner.New(cfg.Kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	st.scan = scan

	hosts, err := scan.DiscoverHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover hosts: %w", err)
	}
	for _, h := range hosts {
		if err := st.reg.Register(h); err != nil {
			return err
		}
	}

	byNode, err := scan.DiscoverWorkloads(ctx, namespace)
	if err != nil {
		return fmt.Errorf("failed to discover workloads: %w", err)
	}
	pinned := 0
	for node, workloads := range byNode {
		for _, w := range workloads {
			if err := st.reg.Assign(node, w); err != nil {
				klog.V(1).InfoS("Skipping pod", "workload", w.Name, "node", node, "err", err)
				continue
			}
			pinned++
		}
	}
	info("Discovered %d nodes and %d running workloads", len(hosts), pinned)
	return nil
}

// newSampler returns the configured utilization source. The synthetic
// sampler is also returned on its own so callers can quiesce hosts.
func (st *stack) newSampler(ctx context.Context) (cluster.Sampler, *sampler.Synthetic, error) {
	switch cfg.Sampler {
	case config.SamplerPrometheus:
		src, err := datasource.NewPrometheusSource(datasource.DefaultConfig(cfg.PrometheusURL))
		if err != nil {
			return nil, nil, err
		}
		if !src.IsAvailable(ctx) {
			warn("Prometheus at %s is not reachable, samples will fail until it is", cfg.PrometheusURL)
		}
		return src, nil, nil
	case config.SamplerKubernetes:
		if st.scan == nil {
			scan, err := scanner.New(cfg.Kubeconfig)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create scanner: %w", err)
			}
			st.scan = scan
		}
		return st.scan.Sampler(), nil, nil
	default:
		syn := sampler.NewSynthetic(sampler.DefaultSyntheticOptions(cfg.SamplerSeed))
		return syn, syn, nil
	}
}

// sinks holds everything the controller publishes to
type sinks struct {
	store    storage.Store
	exporter *metrics.Exporter
	grpc     *stream.GRPCSink
}

func openSinks() (*sinks, error) {
	store, err := storage.NewStore(cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s := &sinks{store: store}

	if cfg.MetricsAddr != "" {
		s.exporter = metrics.NewExporter()
	}
	if cfg.GRPCSinkAddr != "" {
		if s.grpc, err = stream.NewGRPCSink(stream.Options{Addr: cfg.GRPCSinkAddr, Token: cfg.GRPCSinkToken}); err != nil {
			store.Close()
			return nil, err
		}
	}
	klog.V(1).InfoS("Sinks opened", "store", store.Name(), "metrics", cfg.MetricsAddr, "grpc", cfg.GRPCSinkAddr)
	return s, nil
}

func (s *sinks) list() []controller.TelemetrySink {
	out := []controller.TelemetrySink{s.store}
	if s.exporter != nil {
		out = append(out, s.exporter)
	}
	if s.grpc != nil {
		out = append(out, s.grpc)
	}
	return out
}

func (s *sinks) Close() error {
	var errs []error
	if s.grpc != nil {
		errs = append(errs, s.grpc.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

func (st *stack) newController(ctx context.Context, s *sinks) (*controller.Controller, *sampler.Synthetic, error) {
	smp, syn, err := st.newSampler(ctx)
	if err != nil {
		return nil, nil, err
	}
	ctl, err := controller.New(st.reg, smp, st.sched, st.engine, cfg.ControllerOptions(), s.list()...)
	if err != nil {
		return nil, nil, err
	}
	return ctl, syn, nil
}

// kpiConfig prices energy with the regional tariff when a provider or a
// cluster is available and with the configured flat rate otherwise
func (st *stack) kpiConfig(ctx context.Context) kpi.Config {
	if cfg.Provider == "" && st.scan == nil {
		return cfg.KPIConfig()
	}

	pc := &pricing.Config{
		Provider:              cfg.Provider,
		Region:                cfg.Region,
		DefaultPricePerKWh:    cfg.PricePerKWh,
		DefaultCarbonKgPerKWh: cfg.CarbonKgPerKWh,
	}

	var tariff *models.Tariff
	if st.scan != nil {
		tariff = st.scan.Tariff(ctx, pc)
	} else {
		provider, region, err := pricing.NewProvider(ctx, nil, pc)
		if err == nil {
			tariff, err = provider.GetTariff(ctx, region)
		}
		if err != nil {
			warn("Tariff lookup failed, using flat rate: %v", err)
			return cfg.KPIConfig()
		}
	}
	info("Using %s tariff for %s: %.4f %s/kWh, %.3f kg CO2e/kWh",
		tariff.Provider, tariff.Region, tariff.PricePerKWh, tariff.Currency, tariff.CarbonKgPerKWh)
	return kpi.FromTariff(*tariff, cfg.ReferencePeriod)
}
