package stream

import (
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// FrameKind tags the payload carried by a Frame
type FrameKind string

const (
	KindTelemetry     FrameKind = "telemetry"
	KindConsolidation FrameKind = "consolidation"
	KindPlacement     FrameKind = "placement"
)

// Frame is one message on the telemetry stream. Exactly one payload is set.
type Frame struct {
	Kind          FrameKind                   `json:"kind"`
	SentAtUnix    int64                       `json:"sent_at_unix"`
	Telemetry     []models.Telemetry          `json:"telemetry,omitempty"`
	Consolidation *models.ConsolidationResult `json:"consolidation,omitempty"`
	Placement     *models.PlacementDecision   `json:"placement,omitempty"`
}

// Ack is the collector's single response once the client half-closes
type Ack struct {
	Received int `json:"received"`
}

func NewTelemetryFrame(snapshot []models.Telemetry) Frame {
	at := time.Now().UTC().Unix()
	if len(snapshot) > 0 {
		at = snapshot[0].Timestamp.Unix()
	}
	return Frame{
		Kind:       KindTelemetry,
		SentAtUnix: at,
		Telemetry:  append([]models.Telemetry(nil), snapshot...),
	}
}

func NewConsolidationFrame(r models.ConsolidationResult) Frame {
	return Frame{Kind: KindConsolidation, SentAtUnix: r.StartedAt.Unix(), Consolidation: &r}
}

func NewPlacementFrame(d models.PlacementDecision) Frame {
	return Frame{Kind: KindPlacement, SentAtUnix: d.DecidedAt.Unix(), Placement: &d}
}
