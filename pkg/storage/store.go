package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Store persists telemetry snapshots and decision history.
// Every Store can be handed to the controller as a telemetry sink.
type Store interface {
	Name() string

	Publish(ctx context.Context, snapshot []models.Telemetry) error
	HostHistory(ctx context.Context, hostID string, limit int) ([]models.Telemetry, error)

	RecordConsolidation(ctx context.Context, r models.ConsolidationResult) error
	GetConsolidation(ctx context.Context, cycleID string) (*models.ConsolidationResult, error)
	ListConsolidations(ctx context.Context, limit int) ([]models.ConsolidationResult, error)
	Savings(ctx context.Context, since time.Time) (*models.SavingsSummary, error)

	RecordPlacement(ctx context.Context, d models.PlacementDecision) error
	// ListPlacements returns newest first; an empty workload matches all
	ListPlacements(ctx context.Context, workload string, limit int) ([]models.PlacementDecision, error)

	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Type string
	URL  string
}

// NewStore opens the store named by cfg.Type ("postgres" or "memory")
func NewStore(cfg Config) (Store, error) {
	switch cfg.Type {
	case "postgres":
		if cfg.URL == "" {
			return nil, fmt.Errorf("postgres store requires a database URL")
		}
		return NewPostgresStore(cfg.URL)
	case "memory", "":
		return NewMemoryStore(DefaultHistoryPerHost), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
