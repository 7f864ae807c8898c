package scanner

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/power"
)

// MetricsSampler reads node usage from metrics-server. Host ids must be node names.
type MetricsSampler struct {
	scanner *Scanner
}

// Sampler returns a metrics-server backed cluster.Sampler
func (s *Scanner) Sampler() *MetricsSampler {
	return &MetricsSampler{scanner: s}
}

// Sample implements cluster.Sampler, dividing usage by the host profile capacity
func (m *MetricsSampler) Sample(ctx context.Context, host cluster.HostView) (models.Utilization, error) {
	nm, err := m.scanner.metricsClient.MetricsV1beta1().NodeMetricses().Get(ctx, host.ID(), metav1.GetOptions{})
	if err != nil {
		return models.Utilization{}, fmt.Errorf("failed to get node metrics for %s: %w", host.ID(), err)
	}

	cpuCores := float64(nm.Usage.Cpu().MilliValue()) / 1000
	memGB := float64(nm.Usage.Memory().Value()) / bytesPerGB
	return models.Utilization{
		CPU:    power.Clamp01(cpuCores / float64(host.Profile.Cores)),
		Memory: power.Clamp01(memGB / host.Profile.MemoryGB),
	}, nil
}
