package config

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

func TestNewConfigDefaults(t *testing.T) {
	for _, key := range []string{"IDLE_THRESHOLD", "POWER_WEIGHT", "MONITOR_INTERVAL", "SAMPLER", "STORAGE_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := NewConfig()

	if cfg.IdleThreshold != 0.1 || cfg.OverloadThreshold != 0.9 {
		t.Errorf("Expected thresholds 0.1/0.9, got %.2f/%.2f", cfg.IdleThreshold, cfg.OverloadThreshold)
	}

	if cfg.ConsolidationThreshold != 0.3 || cfg.MaxTargetUtilization != 0.8 {
		t.Errorf("Expected consolidation 0.3/0.8, got %.2f/%.2f", cfg.ConsolidationThreshold, cfg.MaxTargetUtilization)
	}

	if cfg.PowerWeight != 0.4 || cfg.UtilizationWeight != 0.4 || cfg.SLAWeight != 0.2 {
		t.Errorf("Expected weights 0.4/0.4/0.2, got %.2f/%.2f/%.2f", cfg.PowerWeight, cfg.UtilizationWeight, cfg.SLAWeight)
	}

	if cfg.MonitorInterval != 2*time.Second {
		t.Errorf("Expected monitor interval 2s, got %v", cfg.MonitorInterval)
	}

	if cfg.ConsolidationEvery != 3 {
		t.Errorf("Expected consolidation every 3 ticks, got %d", cfg.ConsolidationEvery)
	}

	if cfg.Sampler != SamplerSynthetic {
		t.Errorf("Expected synthetic sampler, got %s", cfg.Sampler)
	}

	if cfg.StorageEnabled {
		t.Error("Storage should be disabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate, got: %v", err)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("IDLE_THRESHOLD", "0.05")
	t.Setenv("POWER_WEIGHT", "0.5")
	t.Setenv("UTILIZATION_WEIGHT", "0.3")
	t.Setenv("MONITOR_INTERVAL", "500ms")
	t.Setenv("CONSOLIDATION_EVERY", "5")
	t.Setenv("SAMPLER", "prometheus")
	t.Setenv("PROMETHEUS_URL", "http://prometheus:9090")
	t.Setenv("STORAGE_ENABLED", "1")

	cfg := NewConfig()

	if cfg.IdleThreshold != 0.05 {
		t.Errorf("Expected idle threshold 0.05 from env, got %.2f", cfg.IdleThreshold)
	}

	if cfg.MonitorInterval != 500*time.Millisecond {
		t.Errorf("Expected 500ms from env, got %v", cfg.MonitorInterval)
	}

	if cfg.ConsolidationEvery != 5 {
		t.Errorf("Expected consolidation every 5 ticks from env, got %d", cfg.ConsolidationEvery)
	}

	if cfg.PrometheusURL != "http://prometheus:9090" {
		t.Errorf("Expected custom Prometheus URL, got %s", cfg.PrometheusURL)
	}

	if sc := cfg.StorageConfig(); sc.Type != "postgres" {
		t.Errorf("Expected postgres store when storage is enabled, got %s", sc.Type)
	}

	w := cfg.SchedulerConfig().Weights
	if w.Power != 0.5 || w.Utilization != 0.3 || w.SLA != 0.2 {
		t.Errorf("Unexpected weights %+v", w)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}
}

func TestMalformedEnvironmentFallsBack(t *testing.T) {
	t.Setenv("OVERLOAD_THRESHOLD", "high")
	t.Setenv("CONSOLIDATION_EVERY", "often")
	t.Setenv("REFERENCE_PERIOD", "a day")

	cfg := NewConfig()

	if cfg.OverloadThreshold != 0.9 || cfg.ConsolidationEvery != 3 || cfg.ReferencePeriod != time.Hour {
		t.Errorf("Malformed values should keep defaults, got %.2f, %d, %v",
			cfg.OverloadThreshold, cfg.ConsolidationEvery, cfg.ReferencePeriod)
	}
}

func TestNaNEnvironmentFailsValidation(t *testing.T) {
	t.Setenv("IDLE_THRESHOLD", "NaN")
	t.Setenv("CONSOLIDATION_THRESHOLD", "NaN")
	t.Setenv("TARGET_BAND_LOW", "NaN")

	cfg := NewConfig()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected NaN thresholds to fail validation")
	}
	if !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
	for _, want := range []string{"idle threshold", "consolidation threshold", "target band"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got %v", want, err)
		}
	}
}

func TestDevPreset(t *testing.T) {
	cfg := NewConfig()
	cfg.UseDevPreset()

	if cfg.MonitorInterval != time.Second {
		t.Errorf("Dev preset interval should be 1s, got %v", cfg.MonitorInterval)
	}

	if cfg.ConsolidationEvery != 2 {
		t.Errorf("Dev preset should consolidate every 2 ticks, got %d", cfg.ConsolidationEvery)
	}
}

func TestProductionPreset(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ApplyPreset("production"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.MonitorInterval != 30*time.Second {
		t.Errorf("Production preset interval should be 30s, got %v", cfg.MonitorInterval)
	}

	if cfg.ConsolidationEvery != 10 {
		t.Errorf("Production preset should consolidate every 10 ticks, got %d", cfg.ConsolidationEvery)
	}

	if err := cfg.ApplyPreset("turbo"); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("Unknown preset should be invalid configuration, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name          string
		setupConfig   func(*Config)
		expectError   bool
		errorContains string
	}{
		{
			name:        "valid default config",
			setupConfig: func(c *Config) {},
			expectError: false,
		},
		{
			name: "weights do not sum to one",
			setupConfig: func(c *Config) {
				c.SLAWeight = 0.3
			},
			expectError:   true,
			errorContains: "weights sum",
		},
		{
			name: "idle above overload",
			setupConfig: func(c *Config) {
				c.IdleThreshold = 0.95
			},
			expectError:   true,
			errorContains: "must be below overload",
		},
		{
			name: "consolidation threshold out of range",
			setupConfig: func(c *Config) {
				c.ConsolidationThreshold = 1.5
			},
			expectError:   true,
			errorContains: "consolidation threshold",
		},
		{
			name: "inverted target band",
			setupConfig: func(c *Config) {
				c.TargetBandLow = 0.8
			},
			expectError:   true,
			errorContains: "target band",
		},
		{
			name: "NaN idle threshold",
			setupConfig: func(c *Config) {
				c.IdleThreshold = math.NaN()
			},
			expectError:   true,
			errorContains: "idle threshold",
		},
		{
			name: "NaN consolidation threshold",
			setupConfig: func(c *Config) {
				c.ConsolidationThreshold = math.NaN()
			},
			expectError:   true,
			errorContains: "consolidation threshold",
		},
		{
			name: "NaN target band",
			setupConfig: func(c *Config) {
				c.TargetBandLow = math.NaN()
			},
			expectError:   true,
			errorContains: "target band",
		},
		{
			name: "NaN price",
			setupConfig: func(c *Config) {
				c.PricePerKWh = math.NaN()
			},
			expectError:   true,
			errorContains: "price and carbon",
		},
		{
			name: "zero interval",
			setupConfig: func(c *Config) {
				c.MonitorInterval = 0
			},
			expectError:   true,
			errorContains: "monitor interval",
		},
		{
			name: "unknown sampler",
			setupConfig: func(c *Config) {
				c.Sampler = "docker"
			},
			expectError:   true,
			errorContains: "unknown sampler",
		},
		{
			name: "storage without database",
			setupConfig: func(c *Config) {
				c.StorageEnabled = true
				c.DatabaseURL = ""
			},
			expectError:   true,
			errorContains: "DATABASE_URL",
		},
		{
			name: "negative price",
			setupConfig: func(c *Config) {
				c.PricePerKWh = -1
			},
			expectError:   true,
			errorContains: "price",
		},
		{
			name: "valid edge case - consolidate every tick",
			setupConfig: func(c *Config) {
				c.ConsolidationEvery = 1
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.setupConfig(cfg)

			err := cfg.Validate()

			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}

			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}

			if tt.expectError && err != nil {
				if !errors.Is(err, models.ErrInvalidConfiguration) {
					t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
				}
				if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorContains, err.Error())
				}
			}
		})
	}
}
