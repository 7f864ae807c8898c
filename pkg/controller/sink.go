package controller

import (
	"context"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// TelemetrySink receives the ordered snapshot produced by every tick
type TelemetrySink interface {
	Name() string
	Publish(ctx context.Context, snapshot []models.Telemetry) error
}

// ResultSink is implemented by sinks that also keep decision history
type ResultSink interface {
	RecordConsolidation(ctx context.Context, r models.ConsolidationResult) error
	RecordPlacement(ctx context.Context, d models.PlacementDecision) error
}
