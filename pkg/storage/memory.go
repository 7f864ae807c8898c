package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// DefaultHistoryPerHost bounds the telemetry kept per host by MemoryStore
const DefaultHistoryPerHost = 1024

// MemoryStore keeps history in process. Used by the simulator and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	perHost    int
	telemetry  map[string][]models.Telemetry
	cycles     []models.ConsolidationResult
	placements []models.PlacementDecision
}

// NewMemoryStore keeps at most perHost telemetry records per host (0 means unbounded)
func NewMemoryStore(perHost int) *MemoryStore {
	return &MemoryStore{
		perHost:   perHost,
		telemetry: make(map[string][]models.Telemetry),
	}
}

func (s *MemoryStore) Name() string {
	return "memory"
}

func (s *MemoryStore) Publish(_ context.Context, snapshot []models.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range snapshot {
		h := append(s.telemetry[t.HostID], t)
		if s.perHost > 0 && len(h) > s.perHost {
			h = h[len(h)-s.perHost:]
		}
		s.telemetry[t.HostID] = h
	}
	return nil
}

func (s *MemoryStore) HostHistory(_ context.Context, hostID string, limit int) ([]models.Telemetry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.telemetry[hostID], limit), nil
}

func (s *MemoryStore) RecordConsolidation(_ context.Context, r models.ConsolidationResult) error {
	if r.CycleID == "" {
		r.CycleID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.Migrations = append([]models.Migration(nil), r.Migrations...)
	r.HostsShutdown = append([]string(nil), r.HostsShutdown...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, r)
	return nil
}

func (s *MemoryStore) GetConsolidation(_ context.Context, cycleID string) (*models.ConsolidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.cycles {
		if s.cycles[i].CycleID == cycleID {
			r := s.cycles[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: consolidation cycle %s", models.ErrNotFound, cycleID)
}

func (s *MemoryStore) ListConsolidations(_ context.Context, limit int) ([]models.ConsolidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.cycles, limit), nil
}

func (s *MemoryStore) Savings(_ context.Context, since time.Time) (*models.SavingsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &models.SavingsSummary{Since: since}
	for _, r := range s.cycles {
		if r.StartedAt.Before(since) {
			continue
		}
		summary.Cycles++
		summary.Migrations += len(r.Migrations)
		summary.HostsShutdown += len(r.HostsShutdown)
		summary.EnergySavedWatts += r.EnergySavedWatts
	}
	return summary, nil
}

func (s *MemoryStore) RecordPlacement(_ context.Context, d models.PlacementDecision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.placements = append(s.placements, d)
	return nil
}

func (s *MemoryStore) ListPlacements(_ context.Context, workload string, limit int) ([]models.PlacementDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if workload == "" {
		return newestFirst(s.placements, limit), nil
	}
	var matched []models.PlacementDecision
	for _, d := range s.placements {
		if d.Workload == workload {
			matched = append(matched, d)
		}
	}
	return newestFirst(matched, limit), nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// newestFirst copies the tail of an append-ordered slice in reverse
func newestFirst[T any](in []T, limit int) []T {
	n := len(in)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(in) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, in[i])
	}
	return out
}
