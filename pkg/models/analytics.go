package models

import "time"

// ClusterSummary is an aggregate view of the registry at one instant
type ClusterSummary struct {
	TotalHosts      int
	HostsByState    map[LifecycleState]int
	TotalCores      int
	TotalMemoryGB   float64
	AllocatedCores  float64
	AllocatedMemGB  float64
	TotalWorkloads  int
	TotalPowerWatts float64
	TakenAt         time.Time
}

// ConsolidationStats accumulates consolidation outcomes across cycles
type ConsolidationStats struct {
	Cycles              int
	IdleSweeps          int
	Migrations          int
	HostsShutdown       int
	AbandonedDrains     int
	EnergySavedWatts    float64
	LastCycleAt         time.Time
	LastCycleSavedWatts float64
}

// PlacementStats accumulates scheduler outcomes
type PlacementStats struct {
	Placements       int
	Failures         int
	ByTier           map[SLATier]int
	ByDominantTerm   map[ScoreTerm]int
	AverageScore     float64
	RecentPlacements []PlacementDecision
}

// SuccessRate returns placements / attempts, or 0 when nothing was attempted
func (s PlacementStats) SuccessRate() float64 {
	total := s.Placements + s.Failures
	if total == 0 {
		return 0
	}
	return float64(s.Placements) / float64(total)
}

// SavingsSummary aggregates recorded consolidation cycles since a point in time
type SavingsSummary struct {
	Since            time.Time `json:"since"`
	Cycles           int       `json:"cycles"`
	Migrations       int       `json:"migrations"`
	HostsShutdown    int       `json:"hosts_shutdown"`
	EnergySavedWatts float64   `json:"energy_saved_watts"`
}
