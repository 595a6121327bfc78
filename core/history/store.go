// Package history defines the persistence port for snapshots,
// recommendations and errors, with a memory-backed implementation used in
// tests and as a fallback when no database path is configured.
package history

import (
	"context"
	"time"

	"github.com/mgrande/ladevakt/core/model"
)

// Query filters a history lookup.
type Query struct {
	// VehicleID restricts results to one vehicle when non-empty.
	VehicleID string
	// Since excludes snapshots captured before this instant.
	Since time.Time
}

// ErrorRecord is a persisted fetch or persistence failure.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// Store is the append-only persistence port. Writes are best effort from the
// orchestrator's point of view: a failing store never aborts a cycle.
type Store interface {
	SaveSnapshot(ctx context.Context, st model.Status) error
	SaveRecommendation(ctx context.Context, rec model.Recommendation) error
	SaveError(ctx context.Context, source, kind, message string) error
	// Query returns snapshots matching q, newest first.
	Query(ctx context.Context, q Query) ([]model.Status, error)
	// Latest returns the most recent snapshot for the vehicle, if any.
	Latest(ctx context.Context, vehicleID string) (model.Status, bool, error)
	// DeleteOlderThan removes snapshots, recommendations and errors
	// captured before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
	Close() error
}
