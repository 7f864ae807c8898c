//go:build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

func openPostgres(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresTelemetryRoundTrip(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	host := "it-" + uuid.New().String()
	at := time.Now().UTC().Truncate(time.Millisecond)

	snapshot := []models.Telemetry{{
		Timestamp:         at,
		HostID:            host,
		CPUUtilization:    0.4,
		MemoryUtilization: 0.3,
		PowerWatts:        110,
		TemperatureC:      45,
		LatencyMS:         30,
		ThroughputMbps:    150,
		WorkloadCount:     2,
		State:             models.StateActive,
	}}
	require.NoError(t, s.Publish(ctx, snapshot))

	history, err := s.HostHistory(ctx, host, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 110.0, history[0].PowerWatts, 1e-9)
	assert.Equal(t, models.StateActive, history[0].State)
	assert.True(t, at.Equal(history[0].Timestamp))
}

func TestPostgresConsolidationAndPlacement(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	since := time.Now().UTC().Add(-time.Second)

	r := models.ConsolidationResult{
		CycleID:   uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Migrations: []models.Migration{
			{Workload: "w1", From: "host-a", To: "host-b", Score: 0.71},
			{Workload: "w2", From: "host-a", To: "host-b", Score: 0.64},
		},
		HostsShutdown:    []string{"host-a"},
		EnergySavedWatts: 50,
		PreCycleWatts:    80,
	}
	require.NoError(t, s.RecordConsolidation(ctx, r))

	got, err := s.GetConsolidation(ctx, r.CycleID)
	require.NoError(t, err)
	assert.Equal(t, []string{"host-a"}, got.HostsShutdown)
	require.Len(t, got.Migrations, 2)
	assert.Equal(t, "w1", got.Migrations[0].Workload)

	savings, err := s.Savings(ctx, since)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, savings.Cycles, 1)
	assert.GreaterOrEqual(t, savings.Migrations, 2)

	name := "it-" + uuid.New().String()
	d := models.PlacementDecision{
		Workload: name,
		Tier:     models.TierGold,
		HostID:   "host-b",
		Score:    0.8,
		Dominant: models.TermPower,
		Terms: map[models.ScoreTerm]float64{
			models.TermPower:       0.35,
			models.TermUtilization: 0.3,
			models.TermSLA:         0.15,
		},
	}
	require.NoError(t, s.RecordPlacement(ctx, d))

	placements, err := s.ListPlacements(ctx, name, 5)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.Equal(t, "host-b", placements[0].HostID)
	assert.InDelta(t, 0.35, placements[0].Terms[models.TermPower], 1e-9)
}
