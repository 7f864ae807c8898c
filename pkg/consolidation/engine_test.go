package consolidation

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/scheduler"
)

func newEngine(t *testing.T, profiles ...models.HostProfile) (*Engine, *cluster.Registry) {
	t.Helper()
	reg, err := cluster.NewRegistry(cluster.DefaultThresholds())
	require.NoError(t, err)
	for _, p := range profiles {
		require.NoError(t, reg.Register(p))
	}
	scorer, err := scheduler.NewScorer(scheduler.DefaultConfig())
	require.NoError(t, err)
	e, err := New(reg, scorer, DefaultConfig())
	require.NoError(t, err)
	return e, reg
}

func host(id string, cores int, mem, idle, max float64) models.HostProfile {
	return models.HostProfile{ID: id, Cores: cores, MemoryGB: mem, IdleWatts: idle, MaxWatts: max}
}

func TestNewRejectsBadConfig(t *testing.T) {
	reg, err := cluster.NewRegistry(cluster.DefaultThresholds())
	require.NoError(t, err)
	scorer, err := scheduler.NewScorer(scheduler.DefaultConfig())
	require.NoError(t, err)

	_, err = New(reg, scorer, Config{Threshold: 1.5, MaxTargetUtilization: 0.8})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = New(reg, scorer, Config{Threshold: 0.3, MaxTargetUtilization: 0})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = New(reg, scorer, Config{Threshold: math.NaN(), MaxTargetUtilization: 0.8})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = New(reg, scorer, Config{Threshold: 0.3, MaxTargetUtilization: math.NaN()})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = New(reg, nil, DefaultConfig())
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestShutdownIdleHostsSavesBaseline(t *testing.T) {
	e, reg := newEngine(t, host("host-a", 4, 8, 45, 120), host("host-b", 8, 16, 80, 200))
	require.NoError(t, reg.Sample("host-a", models.Utilization{CPU: 0.05, Memory: 0.05}))
	require.NoError(t, reg.Sample("host-b", models.Utilization{CPU: 0.05, Memory: 0.05}))

	result := e.ShutdownIdleHosts()

	assert.ElementsMatch(t, []string{"host-a", "host-b"}, result.HostsShutdown)
	assert.InDelta(t, 125.0, result.EnergySavedWatts, 1e-9)
	assert.LessOrEqual(t, result.EnergySavedWatts, result.PreCycleWatts)
	for _, id := range []string{"host-a", "host-b"} {
		h, err := reg.Host(id)
		require.NoError(t, err)
		assert.Equal(t, models.StateShutdown, h.State)
	}

	again := e.ShutdownIdleHosts()
	assert.Empty(t, again.HostsShutdown, "shut down hosts are not counted twice")

	stats := e.Stats()
	assert.Equal(t, 2, stats.IdleSweeps)
	assert.Equal(t, 2, stats.HostsShutdown)
	assert.InDelta(t, 125.0, stats.EnergySavedWatts, 1e-9)
}

func TestShutdownIdleHostsKeepsBusyHosts(t *testing.T) {
	e, reg := newEngine(t, host("host-a", 8, 16, 80, 200), host("host-b", 8, 16, 80, 200))
	require.NoError(t, reg.Assign("host-a", models.Workload{Name: "tiny", CPU: 0.1, MemoryGB: 0.1}))
	h, _ := reg.Host("host-a")
	require.Equal(t, models.StateIdle, h.State)

	result := e.ShutdownIdleHosts()
	assert.Equal(t, []string{"host-b"}, result.HostsShutdown)

	h, _ = reg.Host("host-a")
	assert.NotEqual(t, models.StateShutdown, h.State)
}

func TestConsolidateDrainsAndShutsDown(t *testing.T) {
	e, reg := newEngine(t,
		host("host-a", 8, 16, 80, 200),
		host("host-b", 8, 16, 80, 200),
		host("host-c", 4, 8, 45, 120),
	)
	require.NoError(t, reg.Sample("host-b", models.Utilization{CPU: 0.4, Memory: 0.4}))
	require.NoError(t, reg.Sample("host-c", models.Utilization{CPU: 0.2, Memory: 0.2}))
	require.NoError(t, reg.Assign("host-a", models.Workload{Name: "small", CPU: 0.5, MemoryGB: 0.5}))
	require.NoError(t, reg.Assign("host-a", models.Workload{Name: "large", CPU: 1, MemoryGB: 1}))

	result := e.Consolidate()

	require.Len(t, result.Migrations, 2)
	assert.Equal(t, "large", result.Migrations[0].Workload, "largest CPU request moves first")
	assert.Equal(t, "small", result.Migrations[1].Workload)
	for _, m := range result.Migrations {
		assert.Equal(t, "host-a", m.From)
		assert.Equal(t, "host-b", m.To, "candidates never receive workloads")
		assert.Greater(t, m.Score, 0.0)
	}
	assert.Equal(t, []string{"host-a", "host-c"}, result.HostsShutdown)
	assert.InDelta(t, 125.0, result.EnergySavedWatts, 1e-9)
	assert.LessOrEqual(t, result.EnergySavedWatts, result.PreCycleWatts)
	assert.False(t, result.Partial())

	for _, name := range []string{"large", "small"} {
		at, err := reg.Locate(name)
		require.NoError(t, err)
		assert.Equal(t, "host-b", at)
	}
	b, _ := reg.Host("host-b")
	assert.InDelta(t, 0.4+1.5/8, b.Utilization.CPU, 1e-9)
}

func TestConsolidateReportsPartialDrain(t *testing.T) {
	e, reg := newEngine(t,
		host("host-a", 16, 32, 100, 300),
		host("host-t", 8, 16, 80, 200),
	)
	require.NoError(t, reg.Sample("host-t", models.Utilization{CPU: 0.5, Memory: 0.5}))
	require.NoError(t, reg.Assign("host-a", models.Workload{Name: "w1", CPU: 2, MemoryGB: 0.5}))
	require.NoError(t, reg.Assign("host-a", models.Workload{Name: "w2", CPU: 1.5, MemoryGB: 0.5}))

	result := e.Consolidate()

	require.Len(t, result.Migrations, 1)
	assert.Equal(t, models.Migration{Workload: "w1", From: "host-a", To: "host-t", Score: result.Migrations[0].Score}, result.Migrations[0])
	assert.Equal(t, []string{"host-a"}, result.AbandonedHosts)
	assert.Equal(t, []string{"w2"}, result.Unplaced)
	assert.Empty(t, result.HostsShutdown)
	assert.Zero(t, result.EnergySavedWatts)
	assert.True(t, result.Partial())

	// 1.5 of 16 cores left behind: the lifecycle rule puts the host at IDLE,
	// but it still holds w2 so it stays powered
	a, _ := reg.Host("host-a")
	assert.Equal(t, models.StateIdle, a.State)
	assert.NotEqual(t, models.StateShutdown, a.State)
	at, _ := reg.Locate("w1")
	assert.Equal(t, "host-t", at, "completed migrations are not rolled back")
	at, _ = reg.Locate("w2")
	assert.Equal(t, "host-a", at)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Cycles)
	assert.Equal(t, 1, stats.Migrations)
	assert.Equal(t, 1, stats.AbandonedDrains)

	sweep := e.ShutdownIdleHosts()
	assert.Empty(t, sweep.HostsShutdown, "an idle host that holds workloads is not powered off")
}

func TestConsolidateLeavesBusyHostsAlone(t *testing.T) {
	e, reg := newEngine(t, host("host-a", 8, 16, 80, 200), host("host-b", 8, 16, 80, 200))
	require.NoError(t, reg.Sample("host-a", models.Utilization{CPU: 0.5, Memory: 0.2}))
	require.NoError(t, reg.Sample("host-b", models.Utilization{CPU: 0.6, Memory: 0.6}))

	result := e.Consolidate()
	assert.Empty(t, result.Migrations)
	assert.Empty(t, result.HostsShutdown)
	assert.Empty(t, result.AbandonedHosts)
}

func TestConsolidateEnergyNeverExceedsPreCycleDraw(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 25; round++ {
		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			var profiles []models.HostProfile
			for i := 0; i < 6; i++ {
				idle := 40 + rng.Float64()*60
				profiles = append(profiles, host(fmt.Sprintf("host-%02d", i), 4+rng.Intn(13), 8+float64(rng.Intn(57)), idle, idle+50+rng.Float64()*150))
			}
			e, reg := newEngine(t, profiles...)
			for i := 0; i < 12; i++ {
				p := profiles[rng.Intn(len(profiles))]
				w := models.Workload{Name: fmt.Sprintf("w-%d", i), CPU: 0.1 + rng.Float64()*1.5, MemoryGB: 0.1 + rng.Float64()*2}
				_ = reg.Assign(p.ID, w) // capacity failures are fine here
			}

			result := e.Consolidate()
			assert.LessOrEqual(t, result.EnergySavedWatts, result.PreCycleWatts+1e-9)
			for _, id := range result.HostsShutdown {
				h, err := reg.Host(id)
				require.NoError(t, err)
				assert.Empty(t, h.Workloads)
			}
			for _, h := range reg.Hosts() {
				assert.LessOrEqual(t, h.AllocatedCPU, float64(h.Profile.Cores)+1e-9)
				assert.LessOrEqual(t, h.AllocatedMemoryGB, h.Profile.MemoryGB+1e-9)
			}
		})
	}
}
