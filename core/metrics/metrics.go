// Package metrics defines the sink interface fed by the update
// orchestrator. Implementations (Prometheus, InfluxDB) live under
// infra/metrics.
package metrics

import (
	"time"

	"github.com/mgrande/ladevakt/core/model"
)

// FetchFailure describes one failed source fetch within a cycle.
type FetchFailure struct {
	VehicleID string
	Kind      string
}

// CycleEvent summarizes one completed refresh cycle.
type CycleEvent struct {
	Timestamp       time.Time
	Duration        time.Duration
	PriorityVehicle string
	Snapshots       []model.Status
	Recommendations map[string]model.Recommendation
	Failures        []FetchFailure
}

// Sink records cycle events.
type Sink interface {
	RecordCycle(ev CycleEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordCycle(CycleEvent) error { return nil }
