package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SLATier represents the service-level class of a workload
type SLATier string

const (
	TierGold   SLATier = "gold"
	TierSilver SLATier = "silver"
	TierBronze SLATier = "bronze"
)

// ParseSLATier maps a tier name to an SLATier, case-insensitively
func ParseSLATier(s string) (SLATier, error) {
	switch SLATier(strings.ToLower(strings.TrimSpace(s))) {
	case TierGold:
		return TierGold, nil
	case TierSilver:
		return TierSilver, nil
	case TierBronze, "":
		return TierBronze, nil
	default:
		return "", fmt.Errorf("unknown SLA tier: %q", s)
	}
}

// Rank orders tiers from most (3) to least (1) demanding
func (t SLATier) Rank() int {
	switch t {
	case TierGold:
		return 3
	case TierSilver:
		return 2
	default:
		return 1
	}
}

// Workload represents a deployable unit of work requesting CPU and memory.
// The orchestrator owns its lifecycle; the registry only tracks which host holds it.
type Workload struct {
	Name     string  `json:"name" yaml:"name"`
	Image    string  `json:"image,omitempty" yaml:"image,omitempty"`
	CPU      float64 `json:"cpu_cores" yaml:"cpu"`
	MemoryGB float64 `json:"memory_gb" yaml:"memory_gb"`
	Tier     SLATier `json:"sla_tier" yaml:"sla_tier"`
}

// Validate checks that the workload requests are usable and the tier is
// known. An empty tier is bronze.
func (w Workload) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("workload name must not be empty")
	}
	if w.CPU < 0 || w.MemoryGB < 0 {
		return fmt.Errorf("workload %s: requests must be >= 0", w.Name)
	}
	if w.CPU == 0 && w.MemoryGB == 0 {
		return fmt.Errorf("workload %s: at least one request must be > 0", w.Name)
	}
	switch w.Tier {
	case TierGold, TierSilver, TierBronze, "":
	default:
		return fmt.Errorf("workload %s: unknown SLA tier %q", w.Name, w.Tier)
	}
	return nil
}

// NewWorkloadName generates a unique workload name such as "web_20250101_120000_1a2b"
func NewWorkloadName(prefix string) string {
	if prefix == "" {
		prefix = "workload"
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
	return fmt.Sprintf("%s_%s_%s", prefix, time.Now().Format("20060102_150405"), suffix)
}
