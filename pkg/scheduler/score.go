package scheduler

import (
	"math"
	"sort"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/power"
)

// tierWeight is how strongly a tier prefers head-room over packing
var tierWeight = map[models.SLATier]float64{
	models.TierGold:   1.0,
	models.TierSilver: 0.5,
	models.TierBronze: 0.0,
}

// Candidate is one scored host for a workload
type Candidate struct {
	Host     cluster.HostView
	Score    float64
	Terms    map[models.ScoreTerm]float64 // weighted contributions
	Dominant models.ScoreTerm
}

// Scorer evaluates the placement objective against host views. It holds no
// state and is shared by the scheduler and the consolidation engine.
type Scorer struct {
	cfg Config
}

// NewScorer validates cfg and returns a Scorer
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Score evaluates
//
//	score = wp*(1 - impact) + wu*balance + ws*affinity
//
// for placing w on h. It does not check capacity.
func (s *Scorer) Score(h cluster.HostView, w models.Workload) Candidate {
	wt := s.cfg.Weights
	terms := map[models.ScoreTerm]float64{
		models.TermPower:       wt.Power * (1 - s.PowerImpact(h, w)),
		models.TermUtilization: wt.Utilization * s.Balance(h, w),
		models.TermSLA:         wt.SLA * s.Affinity(h, w),
	}
	return Candidate{
		Host:     h,
		Score:    terms[models.TermPower] + terms[models.TermUtilization] + terms[models.TermSLA],
		Terms:    terms,
		Dominant: dominant(terms),
	}
}

// PowerImpact is the marginal power of w's CPU share on h, normalized by the
// host's idle-to-max range
func (s *Scorer) PowerImpact(h cluster.HostView, w models.Workload) float64 {
	delta := w.CPU / float64(h.Profile.Cores)
	marginal := power.MarginalPower(h.Utilization.CPU, delta, h.Profile)
	return power.Clamp01(marginal / h.Profile.DynamicRange())
}

// Balance is 1 when the busier projected dimension lands inside the target
// band and falls off linearly toward an empty or a full host
func (s *Scorer) Balance(h cluster.HostView, w models.Workload) float64 {
	p := h.Projected(w)
	u := math.Max(p.CPU, p.Memory)
	low, high := s.cfg.TargetBandLow, s.cfg.TargetBandHigh
	switch {
	case u < low:
		return power.Clamp01(1 - (low-u)/low)
	case u > high:
		return power.Clamp01(1 - (u-high)/(1-high))
	default:
		return 1
	}
}

// Affinity matches demanding tiers to hosts with head-room and lets bronze
// fill busy hosts. Gold gets nothing on a host it would push to the overload bound.
func (s *Scorer) Affinity(h cluster.HostView, w models.Workload) float64 {
	p := h.Projected(w)
	if w.Tier == models.TierGold && math.Max(p.CPU, p.Memory) >= s.cfg.OverloadBound {
		return 0
	}
	tw, ok := tierWeight[w.Tier]
	if !ok {
		tw = tierWeight[models.TierBronze]
	}
	room := h.Headroom()
	return tw*room + (1-tw)*(1-room)
}

// Rank scores hosts for w and orders them best first. Callers pass hosts
// already filtered by Registry.EligibleTargets. Equal scores fall back to
// the lowest host id.
func (s *Scorer) Rank(hosts []cluster.HostView, w models.Workload) []Candidate {
	out := make([]Candidate, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, s.Score(h, w))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Host.ID() < out[j].Host.ID()
	})
	return out
}

// dominant picks the largest contribution, preferring power then utilization on ties
func dominant(terms map[models.ScoreTerm]float64) models.ScoreTerm {
	best := models.TermPower
	for _, t := range []models.ScoreTerm{models.TermUtilization, models.TermSLA} {
		if terms[t] > terms[best] {
			best = t
		}
	}
	return best
}
