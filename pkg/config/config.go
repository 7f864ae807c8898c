package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/consolidation"
	"github.com/opscart/k8s-energy-consolidator/pkg/controller"
	"github.com/opscart/k8s-energy-consolidator/pkg/kpi"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/scheduler"
	"github.com/opscart/k8s-energy-consolidator/pkg/storage"
)

// Sampler kinds
const (
	SamplerSynthetic  = "synthetic"
	SamplerPrometheus = "prometheus"
	SamplerKubernetes = "kubernetes"
)

// Config holds application configuration
type Config struct {
	// Lifecycle and consolidation
	IdleThreshold          float64
	OverloadThreshold      float64
	ConsolidationThreshold float64
	MaxTargetUtilization   float64

	// Placement objective
	PowerWeight       float64
	UtilizationWeight float64
	SLAWeight         float64
	TargetBandLow     float64
	TargetBandHigh    float64

	// Control loop
	MonitorInterval    time.Duration
	ConsolidationEvery int
	CollectConcurrency int

	// KPIs
	PricePerKWh     float64
	CarbonKgPerKWh  float64
	ReferencePeriod time.Duration
	Provider        string // empty means detect from node labels
	Region          string

	// Telemetry source
	Sampler       string
	SamplerSeed   int64
	PrometheusURL string
	Kubeconfig    string

	// Sinks
	StorageEnabled bool
	DatabaseURL    string
	GRPCSinkAddr   string
	GRPCSinkToken  string
	MetricsAddr    string

	LogVerbosity int
}

// NewConfig creates a new configuration with defaults, overridden by environment variables
func NewConfig() *Config {
	return &Config{
		IdleThreshold:          getEnvFloat("IDLE_THRESHOLD", 0.1),
		OverloadThreshold:      getEnvFloat("OVERLOAD_THRESHOLD", 0.9),
		ConsolidationThreshold: getEnvFloat("CONSOLIDATION_THRESHOLD", 0.3),
		MaxTargetUtilization:   getEnvFloat("MAX_TARGET_UTILIZATION", 0.8),

		PowerWeight:       getEnvFloat("POWER_WEIGHT", 0.4),
		UtilizationWeight: getEnvFloat("UTILIZATION_WEIGHT", 0.4),
		SLAWeight:         getEnvFloat("SLA_WEIGHT", 0.2),
		TargetBandLow:     getEnvFloat("TARGET_BAND_LOW", 0.6),
		TargetBandHigh:    getEnvFloat("TARGET_BAND_HIGH", 0.7),

		MonitorInterval:    getEnvDuration("MONITOR_INTERVAL", 2*time.Second),
		ConsolidationEvery: getEnvInt("CONSOLIDATION_EVERY", 3),
		CollectConcurrency: getEnvInt("COLLECT_CONCURRENCY", cluster.DefaultCollectConcurrency),

		PricePerKWh:     getEnvFloat("PRICE_PER_KWH", 0.12),
		CarbonKgPerKWh:  getEnvFloat("CARBON_KG_PER_KWH", 0.5),
		ReferencePeriod: getEnvDuration("REFERENCE_PERIOD", time.Hour),
		Provider:        getEnv("CLOUD_PROVIDER", ""),
		Region:          getEnv("REGION", ""),

		Sampler:       getEnv("SAMPLER", SamplerSynthetic),
		SamplerSeed:   int64(getEnvInt("SAMPLER_SEED", 42)),
		PrometheusURL: getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		Kubeconfig:    getEnv("KUBECONFIG", ""),

		StorageEnabled: getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:    getEnv("DATABASE_URL", "host=localhost port=5432 user=energyuser password=devpassword dbname=energy sslmode=disable"),
		GRPCSinkAddr:   getEnv("GRPC_SINK_ADDR", ""),
		GRPCSinkToken:  getEnv("GRPC_SINK_TOKEN", ""),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),

		LogVerbosity: getEnvInt("LOG_VERBOSITY", 0),
	}
}

// UseDevPreset ticks fast and consolidates often
func (c *Config) UseDevPreset() {
	c.MonitorInterval = time.Second
	c.ConsolidationEvery = 2
}

// UseProductionPreset ticks slowly and consolidates rarely
func (c *Config) UseProductionPreset() {
	c.MonitorInterval = 30 * time.Second
	c.ConsolidationEvery = 10
}

// ApplyPreset selects a preset by name; an empty name keeps the current values
func (c *Config) ApplyPreset(name string) error {
	switch name {
	case "":
	case "dev":
		c.UseDevPreset()
	case "production":
		c.UseProductionPreset()
	default:
		return fmt.Errorf("%w: unknown preset %q", models.ErrInvalidConfiguration, name)
	}
	return nil
}

func (c *Config) Thresholds() cluster.Thresholds {
	return cluster.Thresholds{Idle: c.IdleThreshold, Overload: c.OverloadThreshold}
}

func (c *Config) SchedulerConfig() scheduler.Config {
	sc := scheduler.DefaultConfig()
	sc.Weights = scheduler.Weights{Power: c.PowerWeight, Utilization: c.UtilizationWeight, SLA: c.SLAWeight}
	sc.TargetBandLow = c.TargetBandLow
	sc.TargetBandHigh = c.TargetBandHigh
	sc.OverloadBound = c.OverloadThreshold
	return sc
}

func (c *Config) ConsolidationConfig() consolidation.Config {
	return consolidation.Config{Threshold: c.ConsolidationThreshold, MaxTargetUtilization: c.MaxTargetUtilization}
}

func (c *Config) ControllerOptions() controller.Options {
	opts := controller.DefaultOptions()
	opts.Interval = c.MonitorInterval
	opts.ConsolidationEvery = c.ConsolidationEvery
	opts.Concurrency = c.CollectConcurrency
	return opts
}

func (c *Config) KPIConfig() kpi.Config {
	kc := kpi.DefaultConfig()
	kc.PricePerKWh = c.PricePerKWh
	kc.CarbonKgPerKWh = c.CarbonKgPerKWh
	kc.ReferencePeriod = c.ReferencePeriod
	return kc
}

// StorageConfig selects Postgres when storage is enabled and the in-memory store otherwise
func (c *Config) StorageConfig() storage.Config {
	if c.StorageEnabled {
		return storage.Config{Type: "postgres", URL: c.DatabaseURL}
	}
	return storage.Config{Type: "memory"}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Validate checks if configuration is valid. Component configs are checked
// with their own rules so the same errors surface here and at construction.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ConsolidationConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.KPIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MonitorInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: monitor interval must be > 0", models.ErrInvalidConfiguration))
	}
	if c.ConsolidationEvery < 1 {
		errs = append(errs, fmt.Errorf("%w: consolidation must run every >= 1 ticks", models.ErrInvalidConfiguration))
	}
	if c.CollectConcurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: collect concurrency must be >= 1", models.ErrInvalidConfiguration))
	}

	switch c.Sampler {
	case SamplerSynthetic, SamplerKubernetes:
	case SamplerPrometheus:
		if c.PrometheusURL == "" {
			errs = append(errs, fmt.Errorf("%w: PROMETHEUS_URL must be set for the prometheus sampler", models.ErrInvalidConfiguration))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown sampler %q", models.ErrInvalidConfiguration, c.Sampler))
	}

	if c.StorageEnabled && c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: DATABASE_URL must be set when storage is enabled", models.ErrInvalidConfiguration))
	}
	return errors.Join(errs...)
}
