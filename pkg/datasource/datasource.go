package datasource

import (
	"context"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
)

// DataSource is a live utilization feed for registered hosts
type DataSource interface {
	cluster.Sampler
	IsAvailable(ctx context.Context) bool
	Name() string
}

type Config struct {
	PrometheusURL string
	Timeout       time.Duration

	// HostLabel is the series label matched against host ids, "instance" for node_exporter
	HostLabel string

	// RateWindow is the range used for CPU rate queries
	RateWindow time.Duration
}

// DefaultConfig targets node_exporter series on a local Prometheus
func DefaultConfig(url string) Config {
	return Config{
		PrometheusURL: url,
		Timeout:       10 * time.Second,
		HostLabel:     "instance",
		RateWindow:    time.Minute,
	}
}
