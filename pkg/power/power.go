// Package power maps host utilization to power draw and to the derived
// presentation metrics carried in telemetry snapshots.
//
// Only Power feeds scheduling and consolidation decisions. Temperature,
// latency and throughput are cosmetic and never read by the decision engines.
package power

import (
	"math"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Model holds the coefficients of the derived metrics.
// Units:
//   - temperature: degrees Celsius
//   - latency: milliseconds
//   - throughput: Mbps
type Model struct {
	BaseTempC   float64
	TempPerUtil float64
	MinTempC    float64
	MaxTempC    float64

	BaseLatencyMS  float64
	LatencyPerUtil float64
	MinLatencyMS   float64
	MaxLatencyMS   float64

	BaseThroughputMbps float64
	ThroughputPerLoad  float64
	CPUBlend           float64 // share of CPU in the cpu/memory blend, memory gets the rest
	MinThroughputMbps  float64
	MaxThroughputMbps  float64
}

// DefaultModel returns the coefficients used by the simulator
func DefaultModel() *Model {
	return &Model{
		BaseTempC:   35.0,
		TempPerUtil: 25.0,
		MinTempC:    20.0,
		MaxTempC:    95.0,

		BaseLatencyMS:  10.0,
		LatencyPerUtil: 50.0,
		MinLatencyMS:   5.0,
		MaxLatencyMS:   100.0,

		BaseThroughputMbps: 100.0,
		ThroughputPerLoad:  50.0,
		CPUBlend:           0.7,
		MinThroughputMbps:  50.0,
		MaxThroughputMbps:  1000.0,
	}
}

// Power returns the draw in watts of a host at the given CPU utilization:
//
//	P = P_idle + (P_max - P_idle) * clamp(u, 0, 1)
//
// The result is monotonic in u and always within [P_idle, P_max].
func Power(utilization float64, profile models.HostProfile) float64 {
	return profile.IdleWatts + profile.DynamicRange()*Clamp01(utilization)
}

// MarginalPower returns the extra watts drawn when utilization rises by delta
func MarginalPower(utilization, delta float64, profile models.HostProfile) float64 {
	return Power(utilization+delta, profile) - Power(utilization, profile)
}

// Temperature returns an operating temperature bounded to [MinTempC, MaxTempC]
func (m *Model) Temperature(cpu float64) float64 {
	return clamp(m.BaseTempC+m.TempPerUtil*Clamp01(cpu), m.MinTempC, m.MaxTempC)
}

// Latency grows with CPU contention
func (m *Model) Latency(cpu float64) float64 {
	return clamp(m.BaseLatencyMS+m.LatencyPerUtil*Clamp01(cpu), m.MinLatencyMS, m.MaxLatencyMS)
}

// Throughput grows with a cpu/memory blend scaled by the number of active workloads
func (m *Model) Throughput(cpu, memory float64, workloads int) float64 {
	blend := m.CPUBlend*Clamp01(cpu) + (1-m.CPUBlend)*Clamp01(memory)
	load := blend * float64(workloads)
	return clamp(m.BaseThroughputMbps+m.ThroughputPerLoad*load, m.MinThroughputMbps, m.MaxThroughputMbps)
}

// Snapshot derives an immutable telemetry record for one host
func (m *Model) Snapshot(at time.Time, profile models.HostProfile, util models.Utilization, workloads int, state models.LifecycleState) models.Telemetry {
	t := models.Telemetry{
		Timestamp:         at,
		HostID:            profile.ID,
		CPUUtilization:    util.CPU,
		MemoryUtilization: util.Memory,
		PowerWatts:        Power(util.CPU, profile),
		TemperatureC:      m.Temperature(util.CPU),
		LatencyMS:         m.Latency(util.CPU),
		ThroughputMbps:    m.Throughput(util.CPU, util.Memory, workloads),
		WorkloadCount:     workloads,
		State:             state,
	}
	if state == models.StateShutdown {
		// a powered-off host draws nothing and serves nothing
		t.PowerWatts = 0
		t.TemperatureC = m.MinTempC
		t.LatencyMS = 0
		t.ThroughputMbps = 0
	}
	return t
}

// Clamp01 clamps v into [0, 1]; NaN maps to 0
func Clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
