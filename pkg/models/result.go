package models

import "time"

// Migration records one workload moved off a drain candidate
type Migration struct {
	Workload string  `json:"workload"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Score    float64 `json:"score"`
}

// ConsolidationResult describes exactly what one consolidation cycle did
type ConsolidationResult struct {
	CycleID          string      `json:"cycle_id"`
	StartedAt        time.Time   `json:"started_at"`
	Migrations       []Migration `json:"migrations"`
	HostsShutdown    []string    `json:"hosts_shutdown"`
	EnergySavedWatts float64     `json:"energy_saved_watts"`

	// PreCycleWatts is the pre-cycle draw of the hosts that were shut down
	PreCycleWatts float64 `json:"pre_cycle_watts"`

	// AbandonedHosts are drain candidates that kept at least one workload
	AbandonedHosts []string `json:"abandoned_hosts,omitempty"`

	// Unplaced lists workloads on abandoned hosts that found no target
	Unplaced []string `json:"unplaced,omitempty"`
}

// Partial reports whether some drains were abandoned
func (r *ConsolidationResult) Partial() bool {
	return len(r.AbandonedHosts) > 0
}

// ScoreTerm names one term of the placement objective
type ScoreTerm string

const (
	TermPower       ScoreTerm = "power"
	TermUtilization ScoreTerm = "utilization"
	TermSLA         ScoreTerm = "sla"
)

// PlacementDecision is the outcome of one scheduling call
type PlacementDecision struct {
	ID        string                `json:"id"`
	Workload  string                `json:"workload"`
	Tier      SLATier               `json:"sla_tier"`
	HostID    string                `json:"host_id,omitempty"` // empty when unplaced
	Score     float64               `json:"score"`
	Dominant  ScoreTerm             `json:"dominant_term,omitempty"`
	Terms     map[ScoreTerm]float64 `json:"terms,omitempty"`
	DecidedAt time.Time             `json:"decided_at"`
	Reason    string                `json:"reason,omitempty"`
}

// Placed reports whether a host was chosen
func (d *PlacementDecision) Placed() bool {
	return d.HostID != ""
}
