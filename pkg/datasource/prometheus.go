package datasource

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/power"
)

// PrometheusSource samples host utilization from node_exporter series
type PrometheusSource struct {
	client v1.API
	cfg    Config
}

func NewPrometheusSource(cfg Config) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: cfg.PrometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	if cfg.HostLabel == "" {
		cfg.HostLabel = "instance"
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	return &PrometheusSource{
		client: v1.NewAPI(client),
		cfg:    cfg,
	}, nil
}

// Sample implements cluster.Sampler. Both queries must return data.
func (p *PrometheusSource) Sample(ctx context.Context, host cluster.HostView) (models.Utilization, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	cpu, err := p.querySingle(ctx, p.cpuQuery(host.ID()))
	if err != nil {
		return models.Utilization{}, fmt.Errorf("CPU query failed: %w", err)
	}
	mem, err := p.querySingle(ctx, p.memoryQuery(host.ID()))
	if err != nil {
		return models.Utilization{}, fmt.Errorf("memory query failed: %w", err)
	}

	return models.Utilization{CPU: power.Clamp01(cpu), Memory: power.Clamp01(mem)}, nil
}

// selector matches the host id with or without an exporter port
func (p *PrometheusSource) selector(hostID string) string {
	return fmt.Sprintf(`%s=~"%s(:[0-9]+)?"`, p.cfg.HostLabel, regexp.QuoteMeta(hostID))
}

func (p *PrometheusSource) cpuQuery(hostID string) string {
	return fmt.Sprintf(`1 - avg(rate(node_cpu_seconds_total{mode="idle",%s}[%s]))`,
		p.selector(hostID), model.Duration(p.cfg.RateWindow))
}

func (p *PrometheusSource) memoryQuery(hostID string) string {
	sel := p.selector(hostID)
	return fmt.Sprintf(`1 - sum(node_memory_MemAvailable_bytes{%s}) / sum(node_memory_MemTotal_bytes{%s})`, sel, sel)
}

func (p *PrometheusSource) querySingle(ctx context.Context, query string) (float64, error) {
	result, warnings, err := p.client.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}

	if len(warnings) > 0 {
		klog.V(1).InfoS("Prometheus returned warnings", "query", query, "warnings", warnings)
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, fmt.Errorf("no data for query: %s", query)
		}
		sum := 0.0
		for _, sample := range v {
			sum += float64(sample.Value)
		}
		return sum, nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("unexpected result type %s for query: %s", result.Type(), query)
	}
}

func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "Prometheus"
}
