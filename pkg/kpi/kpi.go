// Package kpi derives presentation figures from a telemetry snapshot.
// Nothing here feeds back into placement or consolidation.
package kpi

import (
	"fmt"
	"math"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Config holds the tariff and period used for the derived figures
type Config struct {
	PricePerKWh     float64
	CarbonKgPerKWh  float64
	Currency        string
	ReferencePeriod time.Duration
}

// DefaultConfig prices energy at 0.12/kWh with 0.5 kg CO2e per kWh over one hour
func DefaultConfig() Config {
	return Config{
		PricePerKWh:     0.12,
		CarbonKgPerKWh:  0.5,
		Currency:        "USD",
		ReferencePeriod: time.Hour,
	}
}

// FromTariff builds a Config from a regional tariff
func FromTariff(t models.Tariff, period time.Duration) Config {
	return Config{
		PricePerKWh:     t.PricePerKWh,
		CarbonKgPerKWh:  t.CarbonKgPerKWh,
		Currency:        t.Currency,
		ReferencePeriod: period,
	}
}

// Validate rejects NaN or negative prices and a non-positive period
func (c Config) Validate() error {
	if math.IsNaN(c.PricePerKWh) || math.IsNaN(c.CarbonKgPerKWh) || c.PricePerKWh < 0 || c.CarbonKgPerKWh < 0 {
		return fmt.Errorf("%w: price and carbon factor must be >= 0", models.ErrInvalidConfiguration)
	}
	if c.ReferencePeriod <= 0 {
		return fmt.Errorf("%w: reference period must be > 0", models.ErrInvalidConfiguration)
	}
	return nil
}

// Report is the KPI set of one snapshot
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	DataPoints  int       `json:"data_points"`

	TotalHosts      int `json:"total_hosts"`
	ActiveHosts     int `json:"active_hosts"`
	IdleHosts       int `json:"idle_hosts"`
	OverloadedHosts int `json:"overloaded_hosts"`
	ShutdownHosts   int `json:"shutdown_hosts"`

	TotalPowerWatts   float64      `json:"total_power_watts"`
	AveragePowerWatts float64      `json:"average_power_watts"`
	HostPower         Distribution `json:"host_power"`

	TotalCPUUtilization      float64 `json:"total_cpu_utilization"`
	AverageCPUUtilization    float64 `json:"average_cpu_utilization"`
	TotalMemoryUtilization   float64 `json:"total_memory_utilization"`
	AverageMemoryUtilization float64 `json:"average_memory_utilization"`

	TotalWorkloads   int     `json:"total_workloads"`
	WorkloadsPerHost float64 `json:"workloads_per_host"`
	PowerPerWorkload float64 `json:"power_per_workload_watts"`

	ReferencePeriod time.Duration `json:"reference_period"`
	EnergyKWh       float64       `json:"energy_kwh"`
	CostEstimate    float64       `json:"cost_estimate"`
	Currency        string        `json:"currency"`
	CarbonKg        float64       `json:"carbon_kg"`
}

// Compute aggregates the snapshot. Averages and per-host figures count
// every host in the snapshot, shut down ones included; workloads per host
// counts only powered hosts.
func Compute(snapshot []models.Telemetry, cfg Config) Report {
	r := Report{
		DataPoints:      len(snapshot),
		TotalHosts:      len(snapshot),
		ReferencePeriod: cfg.ReferencePeriod,
		Currency:        cfg.Currency,
	}
	if len(snapshot) == 0 {
		return r
	}

	powers := make([]float64, 0, len(snapshot))
	for _, t := range snapshot {
		if t.Timestamp.After(r.GeneratedAt) {
			r.GeneratedAt = t.Timestamp
		}
		switch t.State {
		case models.StateActive:
			r.ActiveHosts++
		case models.StateIdle:
			r.IdleHosts++
		case models.StateOverloaded:
			r.OverloadedHosts++
		case models.StateShutdown:
			r.ShutdownHosts++
		}
		r.TotalPowerWatts += t.PowerWatts
		r.TotalCPUUtilization += t.CPUUtilization
		r.TotalMemoryUtilization += t.MemoryUtilization
		r.TotalWorkloads += t.WorkloadCount
		powers = append(powers, t.PowerWatts)
	}

	n := float64(len(snapshot))
	r.AveragePowerWatts = r.TotalPowerWatts / n
	r.AverageCPUUtilization = r.TotalCPUUtilization / n
	r.AverageMemoryUtilization = r.TotalMemoryUtilization / n
	r.HostPower = Distribute(powers)

	if powered := len(snapshot) - r.ShutdownHosts; powered > 0 {
		r.WorkloadsPerHost = float64(r.TotalWorkloads) / float64(powered)
	}
	if r.TotalWorkloads > 0 {
		r.PowerPerWorkload = r.TotalPowerWatts / float64(r.TotalWorkloads)
	}

	r.EnergyKWh = r.TotalPowerWatts * cfg.ReferencePeriod.Hours() / 1000
	r.CostEstimate = r.EnergyKWh * cfg.PricePerKWh
	r.CarbonKg = r.EnergyKWh * cfg.CarbonKgPerKWh
	return r
}
