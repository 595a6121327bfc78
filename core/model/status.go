package model

import (
	"fmt"
	"time"
)

// Status is an immutable snapshot of a vehicle's battery and location state.
// One Status is produced per vehicle per fetch.
type Status struct {
	VehicleID      string     `json:"vehicle_id"`
	VehicleName    string     `json:"vehicle_name"`
	BatteryPercent float64    `json:"battery_percent"`
	RangeKM        float64    `json:"range_km"`
	Charging       bool       `json:"is_charging"`
	ChargePowerKW  *float64   `json:"charging_power_kw,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	Address        string     `json:"address,omitempty"`
	CapturedAt     time.Time  `json:"last_updated"`
	EstimatedFull  *time.Time `json:"estimated_full,omitempty"`
	Simulated      bool       `json:"is_simulated"`
	// Stale marks a cached snapshot returned because the source was
	// temporarily unreachable.
	Stale bool `json:"is_stale,omitempty"`
}

// Normalize clamps the battery level to [0,100] and the range to a
// non-negative value. Sources call it before handing out a snapshot.
func (s *Status) Normalize() {
	s.BatteryPercent = Clamp(s.BatteryPercent, 0, 100)
	if s.RangeKM < 0 {
		s.RangeKM = 0
	}
}

// Clamp bounds v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s Status) String() string {
	state := "not charging"
	if s.Charging {
		state = "charging"
	}
	sim := ""
	if s.Simulated {
		sim = " [sim]"
	}
	return fmt.Sprintf("%s: %.1f%% (%.0f km) %s%s", s.VehicleName, s.BatteryPercent, s.RangeKM, state, sim)
}
