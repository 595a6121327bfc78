// Package decision turns vehicle status snapshots into charging
// recommendations and ranks vehicles competing for a single charger.
// All functions are pure; the engine holds only its thresholds.
package decision

import (
	"fmt"
	"sort"
	"time"

	"github.com/mgrande/ladevakt/core/model"
)

// Config defines the engine thresholds.
type Config struct {
	// ThresholdPercent is the battery level above which charging is not
	// recommended.
	ThresholdPercent float64 `json:"threshold_percent"`
	// MinimumChargePercent is the floor under which charging is always
	// recommended with maximum urgency.
	MinimumChargePercent float64 `json:"minimum_charge_percent"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ThresholdPercent == 0 {
		c.ThresholdPercent = 80
	}
	if c.MinimumChargePercent == 0 {
		c.MinimumChargePercent = 20
	}
}

// Validate checks threshold bounds.
func (c Config) Validate() error {
	if c.ThresholdPercent < 0 || c.ThresholdPercent > 100 {
		return fmt.Errorf("threshold_percent must be within [0,100], got %v", c.ThresholdPercent)
	}
	if c.MinimumChargePercent < 0 || c.MinimumChargePercent > c.ThresholdPercent {
		return fmt.Errorf("minimum_charge_percent must be within [0,threshold], got %v", c.MinimumChargePercent)
	}
	return nil
}

// Engine computes recommendations. It is safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time
}

// New creates an Engine with the given thresholds.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// Threshold returns the configured charge threshold.
func (e *Engine) Threshold() float64 { return e.cfg.ThresholdPercent }

// Recommend derives the charging action for a single snapshot.
//
// A charging vehicle always gets CONTINUE_CHARGING, even above the
// threshold: flipping to NO_CHARGE mid-session would recommend stopping a
// charge that the operator deliberately started. The minimum-charge floor
// takes precedence over that rule: below the floor the action is CHARGE at
// maximum urgency regardless of the charging flag.
func (e *Engine) Recommend(st model.Status) model.Recommendation {
	rec := model.Recommendation{
		VehicleID:      st.VehicleID,
		BatteryPercent: st.BatteryPercent,
		Threshold:      e.cfg.ThresholdPercent,
		CreatedAt:      e.now(),
	}
	battery := st.BatteryPercent

	switch {
	case battery < e.cfg.MinimumChargePercent:
		rec.Action = model.ActionCharge
		rec.Reason = fmt.Sprintf("Kritisk lavt batteri (%.1f%% < %.1f%%)", battery, e.cfg.MinimumChargePercent)
		rec.Urgency = 100
	case st.Charging:
		rec.Action = model.ActionContinueCharging
		rec.Reason = fmt.Sprintf("Fortsetter lading til terskel (%.1f%% → %.1f%%)", battery, e.cfg.ThresholdPercent)
		rec.Urgency = max(e.cfg.ThresholdPercent-battery, 0)
	case battery < e.cfg.ThresholdPercent:
		rec.Action = model.ActionCharge
		rec.Reason = fmt.Sprintf("Batteri under terskel (%.1f%% < %.1f%%)", battery, e.cfg.ThresholdPercent)
		rec.Urgency = e.cfg.ThresholdPercent - battery
	default:
		rec.Action = model.ActionNoCharge
		rec.Reason = fmt.Sprintf("Batteri over terskel (%.1f%% >= %.1f%%)", battery, e.cfg.ThresholdPercent)
		rec.Urgency = 0
	}
	return rec
}

// Compare returns the vehicle ID that should get the charger, or
// model.PriorityNone when neither needs charging.
//
// CHARGE and CONTINUE_CHARGING are treated identically when deciding whether
// a vehicle needs charging. Ties on urgency fall back to the lower raw
// battery percentage, then to lexical vehicle ID order so results are
// reproducible across runs.
func (e *Engine) Compare(a, b model.Recommendation) string {
	needA, needB := a.NeedsCharging(), b.NeedsCharging()
	switch {
	case !needA && !needB:
		return model.PriorityNone
	case needA && !needB:
		return a.VehicleID
	case needB && !needA:
		return b.VehicleID
	}
	if a.Urgency != b.Urgency {
		if a.Urgency > b.Urgency {
			return a.VehicleID
		}
		return b.VehicleID
	}
	if a.BatteryPercent != b.BatteryPercent {
		if a.BatteryPercent < b.BatteryPercent {
			return a.VehicleID
		}
		return b.VehicleID
	}
	if a.VehicleID < b.VehicleID {
		return a.VehicleID
	}
	return b.VehicleID
}

// RecommendAll computes a recommendation per snapshot and the overall
// priority vehicle. It generalizes Compare to any number of vehicles: the
// winner is the needs-charging vehicle with the highest urgency, ties broken
// by lowest battery percentage, then by vehicle ID.
func (e *Engine) RecommendAll(snapshots []model.Status) (map[string]model.Recommendation, string) {
	recs := make(map[string]model.Recommendation, len(snapshots))
	var candidates []model.Recommendation
	for _, st := range snapshots {
		rec := e.Recommend(st)
		recs[st.VehicleID] = rec
		if rec.NeedsCharging() {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) == 0 {
		return recs, model.PriorityNone
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Urgency != b.Urgency {
			return a.Urgency > b.Urgency
		}
		if a.BatteryPercent != b.BatteryPercent {
			return a.BatteryPercent < b.BatteryPercent
		}
		return a.VehicleID < b.VehicleID
	})
	return recs, candidates[0].VehicleID
}
