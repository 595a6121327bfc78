// Package source defines the vehicle data-source abstraction consumed by the
// update orchestrator, and the simulated implementation. Live
// implementations sit under infra and satisfy the same interface.
package source

import (
	"context"

	"github.com/mgrande/ladevakt/core/model"
)

// Source produces normalized status snapshots for a single vehicle. The
// orchestrator does not know whether an implementation is live or simulated.
type Source interface {
	// VehicleID identifies the vehicle this source reports on.
	VehicleID() string
	// Fetch returns the current status snapshot. Implementations are
	// expected to return the typed errors of this package so callers can
	// classify failures.
	Fetch(ctx context.Context) (model.Status, error)
}
