package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-energy-consolidator/pkg/controller"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

var (
	_ controller.TelemetrySink = (*MemoryStore)(nil)
	_ controller.ResultSink    = (*MemoryStore)(nil)
	_ controller.TelemetrySink = (*PostgresStore)(nil)
	_ controller.ResultSink    = (*PostgresStore)(nil)
)

func snapshotAt(at time.Time, hosts ...string) []models.Telemetry {
	out := make([]models.Telemetry, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, models.Telemetry{Timestamp: at, HostID: h, State: models.StateActive})
	}
	return out
}

func TestMemoryStoreHostHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Publish(ctx, snapshotAt(base.Add(time.Duration(i)*time.Second), "host-a", "host-b")))
	}

	history, err := s.HostHistory(ctx, "host-a", 0)
	require.NoError(t, err)
	require.Len(t, history, 3, "retention bound")
	assert.Equal(t, base.Add(4*time.Second), history[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Second), history[2].Timestamp)

	limited, err := s.HostHistory(ctx, "host-b", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, base.Add(4*time.Second), limited[0].Timestamp)

	none, err := s.HostHistory(ctx, "host-z", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreConsolidations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := models.ConsolidationResult{
		CycleID:          "cycle-1",
		StartedAt:        base,
		HostsShutdown:    []string{"host-a"},
		EnergySavedWatts: 50,
	}
	recent := models.ConsolidationResult{
		CycleID:   "cycle-2",
		StartedAt: base.Add(time.Hour),
		Migrations: []models.Migration{
			{Workload: "w1", From: "host-c", To: "host-b", Score: 0.7},
			{Workload: "w2", From: "host-c", To: "host-b", Score: 0.6},
		},
		HostsShutdown:    []string{"host-c"},
		EnergySavedWatts: 75,
	}
	require.NoError(t, s.RecordConsolidation(ctx, old))
	require.NoError(t, s.RecordConsolidation(ctx, recent))

	got, err := s.GetConsolidation(ctx, "cycle-2")
	require.NoError(t, err)
	assert.Len(t, got.Migrations, 2)

	_, err = s.GetConsolidation(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	list, err := s.ListConsolidations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cycle-2", list[0].CycleID)

	all, err := s.Savings(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Cycles)
	assert.Equal(t, 2, all.Migrations)
	assert.Equal(t, 2, all.HostsShutdown)
	assert.InDelta(t, 125.0, all.EnergySavedWatts, 1e-9)

	since, err := s.Savings(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, since.Cycles)
	assert.InDelta(t, 75.0, since.EnergySavedWatts, 1e-9)
}

func TestMemoryStoreRecordCopiesSlices(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	r := models.ConsolidationResult{CycleID: "c", HostsShutdown: []string{"host-a"}}
	require.NoError(t, s.RecordConsolidation(ctx, r))
	r.HostsShutdown[0] = "mutated"

	got, err := s.GetConsolidation(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"host-a"}, got.HostsShutdown)
	assert.False(t, got.StartedAt.IsZero())
}

func TestMemoryStorePlacements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	for _, name := range []string{"web-1", "db-1", "web-1"} {
		require.NoError(t, s.RecordPlacement(ctx, models.PlacementDecision{Workload: name, HostID: "host-a"}))
	}

	all, err := s.ListPlacements(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, d := range all {
		assert.NotEmpty(t, d.ID)
	}

	web, err := s.ListPlacements(ctx, "web-1", 1)
	require.NoError(t, err)
	require.Len(t, web, 1)
	assert.Equal(t, all[0].ID, web[0].ID)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(Config{})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())
	assert.NoError(t, s.Ping(context.Background()))

	_, err = NewStore(Config{Type: "postgres"})
	assert.Error(t, err)

	_, err = NewStore(Config{Type: "sqlite"})
	assert.Error(t, err)
}
