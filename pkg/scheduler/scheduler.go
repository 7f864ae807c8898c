// Package scheduler places new workloads on the host that best balances
// power impact, utilization and SLA head-room.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Scheduler commits placements into a registry
type Scheduler struct {
	mu     sync.Mutex
	reg    *cluster.Registry
	scorer *Scorer
	cfg    Config
	now    func() time.Time
	stats  models.PlacementStats
	scores float64 // running sum for AverageScore
}

// New validates cfg and returns a Scheduler bound to reg
func New(reg *cluster.Registry, cfg Config) (*Scheduler, error) {
	scorer, err := NewScorer(cfg)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		reg:    reg,
		scorer: scorer,
		cfg:    cfg,
		now:    time.Now,
		stats: models.PlacementStats{
			ByTier:         make(map[models.SLATier]int),
			ByDominantTerm: make(map[models.ScoreTerm]int),
		},
	}, nil
}

// Scorer returns the objective used for placement
func (s *Scheduler) Scorer() *Scorer {
	return s.scorer
}

// Place scores every eligible host and assigns w to the best one. If the
// registry refuses the assignment with ErrCapacityExceeded the next candidate
// is tried. ErrNoCapacity is returned once no candidate remains; the returned
// decision then has no host.
func (s *Scheduler) Place(w models.Workload) (models.PlacementDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placeLocked(w)
}

func (s *Scheduler) placeLocked(w models.Workload) (models.PlacementDecision, error) {
	if w.Tier == "" {
		w.Tier = models.TierBronze
	}
	decision := models.PlacementDecision{
		ID:        uuid.New().String(),
		Workload:  w.Name,
		Tier:      w.Tier,
		DecidedAt: s.now(),
	}
	if err := w.Validate(); err != nil {
		return decision, err
	}

	candidates := s.scorer.Rank(s.reg.EligibleTargets(w), w)
	for _, c := range candidates {
		err := s.reg.Assign(c.Host.ID(), w)
		if errors.Is(err, models.ErrCapacityExceeded) {
			klog.V(3).InfoS("Candidate refused workload, trying next", "workload", w.Name, "host", c.Host.ID())
			continue
		}
		if err != nil {
			return decision, err
		}

		decision.HostID = c.Host.ID()
		decision.Score = c.Score
		decision.Dominant = c.Dominant
		decision.Terms = c.Terms
		s.record(decision)
		klog.V(2).InfoS("Placed workload",
			"workload", w.Name, "tier", w.Tier, "host", decision.HostID,
			"score", decision.Score, "dominant", decision.Dominant)
		return decision, nil
	}

	decision.Reason = fmt.Sprintf("no eligible host for %.2f cores / %.2fGB (%d candidates)", w.CPU, w.MemoryGB, len(candidates))
	s.record(decision)
	klog.V(2).InfoS("Workload unplaced", "workload", w.Name, "cpu", w.CPU, "memoryGB", w.MemoryGB)
	return decision, fmt.Errorf("%w: %s", models.ErrNoCapacity, w.Name)
}

// ScheduleBatch places workloads one at a time in input order, each placement
// committed before the next is scored. Every workload gets a decision; the
// failures are joined into the returned error.
func (s *Scheduler) ScheduleBatch(workloads []models.Workload) ([]models.PlacementDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	decisions := make([]models.PlacementDecision, 0, len(workloads))
	var errs []error
	for _, w := range workloads {
		d, err := s.placeLocked(w)
		decisions = append(decisions, d)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return decisions, errors.Join(errs...)
}

func (s *Scheduler) record(d models.PlacementDecision) {
	if d.Placed() {
		s.stats.Placements++
		s.stats.ByTier[d.Tier]++
		s.stats.ByDominantTerm[d.Dominant]++
		s.scores += d.Score
		s.stats.AverageScore = s.scores / float64(s.stats.Placements)
	} else {
		s.stats.Failures++
	}
	if s.cfg.RecentPlacements == 0 {
		return
	}
	s.stats.RecentPlacements = append(s.stats.RecentPlacements, d)
	if n := len(s.stats.RecentPlacements); n > s.cfg.RecentPlacements {
		s.stats.RecentPlacements = s.stats.RecentPlacements[n-s.cfg.RecentPlacements:]
	}
}

// Stats returns a copy of the cumulative placement statistics
func (s *Scheduler) Stats() models.PlacementStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.ByTier = make(map[models.SLATier]int, len(s.stats.ByTier))
	for k, v := range s.stats.ByTier {
		out.ByTier[k] = v
	}
	out.ByDominantTerm = make(map[models.ScoreTerm]int, len(s.stats.ByDominantTerm))
	for k, v := range s.stats.ByDominantTerm {
		out.ByDominantTerm[k] = v
	}
	out.RecentPlacements = append([]models.PlacementDecision(nil), s.stats.RecentPlacements...)
	return out
}
