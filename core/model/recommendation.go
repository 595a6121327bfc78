package model

import "time"

// Action is a charging recommendation outcome.
type Action string

const (
	ActionCharge           Action = "CHARGE"
	ActionNoCharge         Action = "NO_CHARGE"
	ActionContinueCharging Action = "CONTINUE_CHARGING"
)

// PriorityNone is reported when no vehicle needs charging.
const PriorityNone = "NONE"

// Recommendation is derived from exactly one Status and never mutated.
type Recommendation struct {
	VehicleID      string    `json:"vehicle_id"`
	Action         Action    `json:"action"`
	Reason         string    `json:"reason"`
	BatteryPercent float64   `json:"battery_percent"`
	Threshold      float64   `json:"threshold"`
	// Urgency grows with the distance below the threshold. It is the
	// score used to rank vehicles that need charging.
	Urgency   float64   `json:"priority_score"`
	CreatedAt time.Time `json:"timestamp"`
}

// NeedsCharging reports whether the recommendation asks for power. CHARGE and
// CONTINUE_CHARGING are deliberately equivalent here: a charging vehicle still
// competes for priority.
func (r Recommendation) NeedsCharging() bool {
	return r.Action == ActionCharge || r.Action == ActionContinueCharging
}
