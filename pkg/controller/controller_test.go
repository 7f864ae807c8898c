package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/consolidation"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/sampler"
	"github.com/opscart/k8s-energy-consolidator/pkg/scheduler"
)

type recordingSink struct {
	mu           sync.Mutex
	snapshots    [][]models.Telemetry
	cycles       []models.ConsolidationResult
	placements   []models.PlacementDecision
	publishError error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, snapshot []models.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return s.publishError
}

func (s *recordingSink) RecordConsolidation(_ context.Context, r models.ConsolidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, r)
	return nil
}

func (s *recordingSink) RecordPlacement(_ context.Context, d models.PlacementDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placements = append(s.placements, d)
	return nil
}

func newController(t *testing.T, fx *sampler.Fixture, opts Options, sinks ...TelemetrySink) *Controller {
	t.Helper()
	reg, err := cluster.NewRegistry(cluster.DefaultThresholds())
	require.NoError(t, err)
	for _, p := range []models.HostProfile{
		{ID: "host-a", Cores: 4, MemoryGB: 8, IdleWatts: 45, MaxWatts: 120},
		{ID: "host-b", Cores: 8, MemoryGB: 16, IdleWatts: 80, MaxWatts: 200},
		{ID: "host-c", Cores: 8, MemoryGB: 16, IdleWatts: 80, MaxWatts: 200},
	} {
		require.NoError(t, reg.Register(p))
	}
	sched, err := scheduler.New(reg, scheduler.DefaultConfig())
	require.NoError(t, err)
	engine, err := consolidation.New(reg, sched.Scorer(), consolidation.DefaultConfig())
	require.NoError(t, err)
	c, err := New(reg, fx, sched, engine, opts, sinks...)
	require.NoError(t, err)
	return c
}

func TestNewValidatesOptions(t *testing.T) {
	reg, err := cluster.NewRegistry(cluster.DefaultThresholds())
	require.NoError(t, err)
	sched, err := scheduler.New(reg, scheduler.DefaultConfig())
	require.NoError(t, err)
	engine, err := consolidation.New(reg, sched.Scorer(), consolidation.DefaultConfig())
	require.NoError(t, err)
	fx := sampler.NewFixture(nil)

	_, err = New(reg, fx, sched, engine, Options{Interval: 0, ConsolidationEvery: 1})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = New(reg, fx, sched, engine, Options{Interval: time.Second, ConsolidationEvery: 0})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = New(nil, fx, sched, engine, DefaultOptions())
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestTickSweepsAndConsolidatesOnSchedule(t *testing.T) {
	fx := sampler.NewFixture(map[string]models.Utilization{
		"host-a": {CPU: 0.05, Memory: 0.05},
		"host-b": {CPU: 0.5, Memory: 0.5},
		"host-c": {CPU: 0.2, Memory: 0.2},
	})
	sink := &recordingSink{}
	opts := DefaultOptions()
	opts.ConsolidationEvery = 2
	c := newController(t, fx, opts, sink)
	ctx := context.Background()

	first, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Tick)
	assert.Equal(t, []string{"host-a"}, first.Sweep.HostsShutdown)
	assert.Nil(t, first.Consolidation)
	require.Len(t, first.Snapshot, 3)
	assert.Equal(t, models.StateShutdown, first.Snapshot[0].State)

	second, err := c.Tick(ctx)
	require.NoError(t, err)
	require.NotNil(t, second.Consolidation)
	assert.Equal(t, []string{"host-c"}, second.Consolidation.HostsShutdown)

	assert.Len(t, sink.snapshots, 2)
	assert.Len(t, sink.cycles, 2, "only cycles that did something are recorded")
	assert.Equal(t, 2, c.Ticks())
	assert.Equal(t, second.Snapshot, c.Latest())
}

func TestTickReportsSamplerFailures(t *testing.T) {
	fx := sampler.NewFixture(map[string]models.Utilization{
		"host-a": {CPU: 0.5, Memory: 0.5},
		"host-b": {CPU: 0.5, Memory: 0.5},
		"host-c": {CPU: 0.5, Memory: 0.5},
	})
	boom := errors.New("exporter unreachable")
	fx.Fail("host-b", boom)
	c := newController(t, fx, DefaultOptions())

	report, err := c.Tick(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, report.SampleErr, boom)
	assert.Len(t, report.Snapshot, 3)
}

func TestTickReturnsSinkErrors(t *testing.T) {
	fx := sampler.NewFixture(nil)
	sink := &recordingSink{publishError: errors.New("disk full")}
	c := newController(t, fx, DefaultOptions(), sink)

	_, err := c.Tick(context.Background())
	assert.ErrorContains(t, err, "recording")
	assert.ErrorContains(t, err, "disk full")
}

func TestPlaceAndRemove(t *testing.T) {
	fx := sampler.NewFixture(map[string]models.Utilization{
		"host-a": {CPU: 0.5, Memory: 0.5},
		"host-b": {CPU: 0.5, Memory: 0.5},
		"host-c": {CPU: 0.5, Memory: 0.5},
	})
	sink := &recordingSink{}
	c := newController(t, fx, DefaultOptions(), sink)
	ctx := context.Background()
	_, err := c.Tick(ctx)
	require.NoError(t, err)

	d, err := c.Place(ctx, models.Workload{Name: "web-01", CPU: 1, MemoryGB: 1, Tier: models.TierGold})
	require.NoError(t, err)
	require.True(t, d.Placed())

	ds, err := c.ScheduleBatch(ctx, []models.Workload{
		{Name: "api-02", CPU: 0.5, MemoryGB: 1, Tier: models.TierSilver},
		{Name: "huge", CPU: 64, MemoryGB: 1},
	})
	assert.ErrorIs(t, err, models.ErrNoCapacity)
	require.Len(t, ds, 2)
	assert.Len(t, sink.placements, 3)

	from, err := c.Remove("web-01")
	require.NoError(t, err)
	assert.Equal(t, d.HostID, from)

	_, err = c.Remove("web-01")
	assert.ErrorIs(t, err, models.ErrUnknownWorkload)
}

func TestPlaceOrRestartPowersOnCheapestHost(t *testing.T) {
	sink := &recordingSink{}
	c := newController(t, sampler.NewFixture(nil), DefaultOptions(), sink)
	ctx := context.Background()
	reg := c.Registry()
	require.NoError(t, reg.Shutdown("host-b"))
	require.NoError(t, reg.Shutdown("host-c"))
	require.NoError(t, reg.Assign("host-a", models.Workload{Name: "filler", CPU: 3.5, MemoryGB: 1}))

	d, restarted, err := c.PlaceOrRestart(ctx, models.Workload{Name: "web", CPU: 2, MemoryGB: 2, Tier: models.TierSilver})
	require.NoError(t, err)
	assert.Equal(t, "host-b", restarted, "equal idle draw falls back to the lowest id")
	assert.Equal(t, "host-b", d.HostID)

	hc, err := reg.Host("host-c")
	require.NoError(t, err)
	assert.Equal(t, models.StateShutdown, hc.State)

	d, restarted, err = c.PlaceOrRestart(ctx, models.Workload{Name: "small", CPU: 0.25, MemoryGB: 0.5})
	require.NoError(t, err)
	assert.Empty(t, restarted, "no restart while a running host has room")
	assert.NotEqual(t, "host-c", d.HostID)

	_, restarted, err = c.PlaceOrRestart(ctx, models.Workload{Name: "huge", CPU: 64, MemoryGB: 1})
	assert.ErrorIs(t, err, models.ErrNoCapacity)
	assert.Empty(t, restarted)
	assert.Len(t, sink.placements, 3)
}

func TestRunStopsOnCancel(t *testing.T) {
	fx := sampler.NewFixture(nil)
	opts := DefaultOptions()
	opts.Interval = 5 * time.Millisecond
	c := newController(t, fx, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.Ticks() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
