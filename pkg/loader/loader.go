package loader

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// WorkloadSpec is a workload with an optional pinned host
type WorkloadSpec struct {
	models.Workload `yaml:",inline"`
	Host            string `yaml:"host,omitempty"`
}

// ClusterFile is the on-disk description of a cluster
type ClusterFile struct {
	Hosts     []models.HostProfile `yaml:"hosts"`
	Workloads []WorkloadSpec       `yaml:"workloads,omitempty"`
}

// Load reads and validates a cluster definition
func Load(path string) (*ClusterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML cluster definition. Unknown fields are rejected.
func Parse(data []byte) (*ClusterFile, error) {
	var cf ClusterFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("failed to parse cluster file: %w", err)
	}
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	return &cf, nil
}

// Validate checks host profiles, workload requests and references
func (cf *ClusterFile) Validate() error {
	if len(cf.Hosts) == 0 {
		return fmt.Errorf("cluster file defines no hosts")
	}

	hosts := make(map[string]bool, len(cf.Hosts))
	for _, h := range cf.Hosts {
		if err := h.Validate(); err != nil {
			return err
		}
		if hosts[h.ID] {
			return fmt.Errorf("%w: %s", models.ErrDuplicateHost, h.ID)
		}
		hosts[h.ID] = true
	}

	names := make(map[string]bool, len(cf.Workloads))
	for i := range cf.Workloads {
		w := &cf.Workloads[i]
		tier, err := models.ParseSLATier(string(w.Tier))
		if err != nil {
			return fmt.Errorf("workload %s: %w", w.Name, err)
		}
		w.Tier = tier
		if err := w.Workload.Validate(); err != nil {
			return err
		}
		if names[w.Name] {
			return fmt.Errorf("%w: %s", models.ErrDuplicateWorkload, w.Name)
		}
		names[w.Name] = true
		if w.Host != "" && !hosts[w.Host] {
			return fmt.Errorf("workload %s: %w: %s", w.Name, models.ErrUnknownHost, w.Host)
		}
	}
	return nil
}

// Apply registers every host and assigns pinned workloads. The unpinned
// workloads are returned in file order for the scheduler.
func (cf *ClusterFile) Apply(reg *cluster.Registry) ([]models.Workload, error) {
	for _, h := range cf.Hosts {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}

	var pending []models.Workload
	for _, w := range cf.Workloads {
		if w.Host == "" {
			pending = append(pending, w.Workload)
			continue
		}
		if err := reg.Assign(w.Host, w.Workload); err != nil {
			return nil, fmt.Errorf("pin %s to %s: %w", w.Name, w.Host, err)
		}
	}

	klog.V(2).InfoS("Applied cluster definition", "hosts", len(cf.Hosts), "pinned", len(cf.Workloads)-len(pending))
	return pending, nil
}

// Marshal encodes the definition as YAML
func (cf *ClusterFile) Marshal() ([]byte, error) {
	return yaml.Marshal(cf)
}

var hostConfigs = []models.HostProfile{
	{Cores: 4, MemoryGB: 8, IdleWatts: 50, MaxWatts: 200},
	{Cores: 8, MemoryGB: 16, IdleWatts: 80, MaxWatts: 300},
	{Cores: 6, MemoryGB: 12, IdleWatts: 60, MaxWatts: 250},
	{Cores: 4, MemoryGB: 8, IdleWatts: 45, MaxWatts: 180},
	{Cores: 8, MemoryGB: 16, IdleWatts: 85, MaxWatts: 320},
}

type workloadType struct {
	prefix       string
	image        string
	cpuLo, cpuHi float64
	memLo, memHi float64
	tier         models.SLATier
}

var workloadTypes = []workloadType{
	{"web", "nginx:latest", 0.5, 1.5, 0.5, 2.0, models.TierGold},
	{"db", "postgres:latest", 1.0, 2.0, 2.0, 4.0, models.TierGold},
	{"api", "python:3.10", 0.5, 1.0, 1.0, 2.0, models.TierSilver},
	{"worker", "python:3.10", 0.25, 0.75, 0.5, 1.5, models.TierBronze},
	{"cache", "redis:latest", 0.5, 1.0, 1.0, 2.0, models.TierSilver},
}

// Sample builds the demonstration cluster: hosts cycle through five
// hardware profiles and workloads through five service types with
// requests drawn from rng. No workload is pinned.
func Sample(numHosts, numWorkloads int, rng *rand.Rand) *ClusterFile {
	cf := &ClusterFile{}
	for i := 0; i < numHosts; i++ {
		p := hostConfigs[i%len(hostConfigs)]
		p.ID = fmt.Sprintf("host-%03d", i+1)
		cf.Hosts = append(cf.Hosts, p)
	}
	for i := 0; i < numWorkloads; i++ {
		cf.Workloads = append(cf.Workloads, WorkloadSpec{Workload: RandomWorkload(i, rng)})
	}
	return cf
}

// RandomWorkload draws the i-th demonstration workload
func RandomWorkload(i int, rng *rand.Rand) models.Workload {
	t := workloadTypes[i%len(workloadTypes)]
	return models.Workload{
		Name:     fmt.Sprintf("%s-%02d", t.prefix, i+1),
		Image:    t.image,
		CPU:      round2(t.cpuLo + rng.Float64()*(t.cpuHi-t.cpuLo)),
		MemoryGB: round2(t.memLo + rng.Float64()*(t.memHi-t.memLo)),
		Tier:     t.tier,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
