package loader

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

const clusterYAML = `
hosts:
  - id: host-a
    cores: 4
    memory_gb: 8
    idle_watts: 50
    max_watts: 200
  - id: host-b
    cores: 8
    memory_gb: 16
    idle_watts: 80
    max_watts: 300
workloads:
  - name: db-1
    image: postgres:latest
    cpu: 2
    memory_gb: 4
    sla_tier: Gold
    host: host-b
  - name: web-1
    cpu: 0.5
    memory_gb: 1
`

func TestParseAndApply(t *testing.T) {
	cf, err := Parse([]byte(clusterYAML))
	require.NoError(t, err)
	require.Len(t, cf.Hosts, 2)
	require.Len(t, cf.Workloads, 2)
	assert.Equal(t, models.TierGold, cf.Workloads[0].Tier)
	assert.Equal(t, models.TierBronze, cf.Workloads[1].Tier, "empty tier defaults to bronze")

	reg, err := cluster.NewRegistry(cluster.DefaultThresholds())
	require.NoError(t, err)

	pending, err := cf.Apply(reg)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "web-1", pending[0].Name)

	host, err := reg.Locate("db-1")
	require.NoError(t, err)
	assert.Equal(t, "host-b", host)

	view, err := reg.Host("host-b")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, view.Utilization.CPU, 1e-9)
}

func TestParseRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		is   error
	}{
		{
			name: "no hosts",
			yaml: "workloads: []\n",
		},
		{
			name: "unknown field",
			yaml: "hosts:\n  - id: h\n    cores: 1\n    memory_gb: 1\n    idle_watts: 1\n    max_watts: 2\n    gpus: 4\n",
		},
		{
			name: "idle above max",
			yaml: "hosts:\n  - id: h\n    cores: 1\n    memory_gb: 1\n    idle_watts: 3\n    max_watts: 2\n",
		},
		{
			name: "duplicate host",
			yaml: "hosts:\n  - {id: h, cores: 1, memory_gb: 1, idle_watts: 1, max_watts: 2}\n  - {id: h, cores: 1, memory_gb: 1, idle_watts: 1, max_watts: 2}\n",
			is:   models.ErrDuplicateHost,
		},
		{
			name: "pinned to unknown host",
			yaml: "hosts:\n  - {id: h, cores: 1, memory_gb: 1, idle_watts: 1, max_watts: 2}\nworkloads:\n  - {name: w, cpu: 0.5, host: nope}\n",
			is:   models.ErrUnknownHost,
		},
		{
			name: "bad tier",
			yaml: "hosts:\n  - {id: h, cores: 1, memory_gb: 1, idle_watts: 1, max_watts: 2}\nworkloads:\n  - {name: w, cpu: 0.5, sla_tier: platinum}\n",
		},
		{
			name: "duplicate workload",
			yaml: "hosts:\n  - {id: h, cores: 1, memory_gb: 1, idle_watts: 1, max_watts: 2}\nworkloads:\n  - {name: w, cpu: 0.5}\n  - {name: w, cpu: 0.5}\n",
			is:   models.ErrDuplicateWorkload,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			if tc.is != nil {
				assert.True(t, errors.Is(err, tc.is), "got %v", err)
			}
		})
	}
}

func TestApplyPinnedOverCapacity(t *testing.T) {
	cf, err := Parse([]byte("hosts:\n  - {id: h, cores: 1, memory_gb: 1, idle_watts: 1, max_watts: 2}\nworkloads:\n  - {name: w, cpu: 2, host: h}\n"))
	require.NoError(t, err)

	reg, err := cluster.NewRegistry(cluster.DefaultThresholds())
	require.NoError(t, err)
	_, err = cf.Apply(reg)
	assert.True(t, errors.Is(err, models.ErrCapacityExceeded))
}

func TestLoadRoundTripsThroughFile(t *testing.T) {
	cf := Sample(5, 15, rand.New(rand.NewSource(7)))
	data, err := cf.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cf.Hosts, loaded.Hosts)
	assert.Equal(t, cf.Workloads, loaded.Workloads)
}

func TestSample(t *testing.T) {
	cf := Sample(7, 15, rand.New(rand.NewSource(1)))
	require.NoError(t, cf.Validate())

	require.Len(t, cf.Hosts, 7)
	assert.Equal(t, "host-001", cf.Hosts[0].ID)
	assert.Equal(t, 50.0, cf.Hosts[0].IdleWatts)
	assert.Equal(t, "host-006", cf.Hosts[5].ID)
	assert.Equal(t, cf.Hosts[0].MaxWatts, cf.Hosts[5].MaxWatts, "profiles cycle")

	require.Len(t, cf.Workloads, 15)
	tiers := map[models.SLATier]int{}
	for i, w := range cf.Workloads {
		tiers[w.Tier]++
		wt := workloadTypes[i%len(workloadTypes)]
		assert.GreaterOrEqual(t, w.CPU, wt.cpuLo)
		assert.LessOrEqual(t, w.CPU, wt.cpuHi)
		assert.GreaterOrEqual(t, w.MemoryGB, wt.memLo)
		assert.LessOrEqual(t, w.MemoryGB, wt.memHi)
	}
	assert.Equal(t, "web-01", cf.Workloads[0].Name)
	assert.Equal(t, "cache-15", cf.Workloads[14].Name)
	assert.Equal(t, 6, tiers[models.TierGold])
	assert.Equal(t, 6, tiers[models.TierSilver])
	assert.Equal(t, 3, tiers[models.TierBronze])
}
