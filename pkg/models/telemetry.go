package models

import "time"

// Telemetry is an immutable point-in-time record of one host.
// It is produced once per monitoring tick and never mutated afterwards.
type Telemetry struct {
	Timestamp         time.Time      `json:"timestamp"`
	HostID            string         `json:"host_id"`
	CPUUtilization    float64        `json:"cpu_utilization"`
	MemoryUtilization float64        `json:"memory_utilization"`
	PowerWatts        float64        `json:"power_watts"`
	TemperatureC      float64        `json:"temperature_c"`
	LatencyMS         float64        `json:"latency_ms"`
	ThroughputMbps    float64        `json:"throughput_mbps"`
	WorkloadCount     int            `json:"workload_count"`
	State             LifecycleState `json:"state"`
}

// IsIdle reports whether the snapshot was taken in the IDLE state
func (t Telemetry) IsIdle() bool {
	return t.State == StateIdle
}
