package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mgrande/ladevakt/core/model"
)

// SimulatorConfig parameterizes one simulated vehicle. Distinct amplitude,
// period and baseline per source give visibly different trajectories, so a
// two-vehicle setup exercises the priority logic without real hardware.
type SimulatorConfig struct {
	VehicleID   string `json:"vehicle_id"`
	VehicleName string `json:"vehicle_name"`
	// BaselinePercent is the center of the simulated battery curve.
	BaselinePercent float64 `json:"baseline_percent"`
	// AmplitudePercent is the swing around the baseline.
	AmplitudePercent float64 `json:"amplitude_percent"`
	// PeriodHours is the duration of one full battery cycle.
	PeriodHours float64 `json:"period_hours"`
	// FloorPercent and CeilPercent clamp the curve. Like every numeric
	// field here, zero selects the default; a literal floor of 0 is
	// expressed with a small positive value such as 0.1.
	FloorPercent float64 `json:"floor_percent"`
	CeilPercent  float64 `json:"ceil_percent"`
	// ChargeCutoffPercent: the simulated vehicle reports charging whenever
	// its level is below this cutoff.
	ChargeCutoffPercent float64 `json:"charge_cutoff_percent"`
	// KMPerPercent converts battery percent to remaining range.
	KMPerPercent float64 `json:"km_per_percent"`
	// ChargePowerKW is reported while the simulated vehicle charges.
	ChargePowerKW float64 `json:"charge_power_kw"`
}

// SetDefaults applies sane defaults.
func (c *SimulatorConfig) SetDefaults() {
	if c.VehicleName == "" {
		c.VehicleName = c.VehicleID
	}
	if c.BaselinePercent == 0 {
		c.BaselinePercent = 70
	}
	if c.AmplitudePercent == 0 {
		c.AmplitudePercent = 20
	}
	if c.PeriodHours == 0 {
		c.PeriodHours = 2 * math.Pi
	}
	if c.CeilPercent == 0 {
		c.CeilPercent = 90
	}
	if c.FloorPercent == 0 {
		c.FloorPercent = 20
	}
	if c.ChargeCutoffPercent == 0 {
		c.ChargeCutoffPercent = 40
	}
	if c.KMPerPercent == 0 {
		c.KMPerPercent = 4.5
	}
	if c.ChargePowerKW == 0 {
		c.ChargePowerKW = 11
	}
}

// Validate checks mandatory fields.
func (c SimulatorConfig) Validate() error {
	if c.VehicleID == "" {
		return fmt.Errorf("vehicle_id is required")
	}
	if c.PeriodHours <= 0 {
		return fmt.Errorf("period_hours must be positive")
	}
	if c.FloorPercent > c.CeilPercent {
		return fmt.Errorf("floor_percent %v above ceil_percent %v", c.FloorPercent, c.CeilPercent)
	}
	return nil
}

// Simulated synthesizes snapshots from wall-clock time using a periodic
// function. Fetch never fails.
type Simulated struct {
	cfg SimulatorConfig
	now func() time.Time
}

// NewSimulated creates a simulated source.
func NewSimulated(cfg SimulatorConfig) *Simulated {
	cfg.SetDefaults()
	return &Simulated{cfg: cfg, now: time.Now}
}

// SetClock replaces the time source, making trajectories fully
// deterministic in tests.
func (s *Simulated) SetClock(now func() time.Time) { s.now = now }

// VehicleID implements Source.
func (s *Simulated) VehicleID() string { return s.cfg.VehicleID }

// BatteryAt returns the simulated battery level at t.
func (s *Simulated) BatteryAt(t time.Time) float64 {
	hours := float64(t.UnixNano()) / float64(time.Hour)
	phase := 2 * math.Pi * hours / s.cfg.PeriodHours
	level := s.cfg.BaselinePercent + s.cfg.AmplitudePercent*math.Sin(phase)
	return model.Clamp(level, s.cfg.FloorPercent, s.cfg.CeilPercent)
}

// Fetch implements Source. Charging is a pure function of the simulated
// level relative to the cutoff, so charging transitions happen at exactly
// predictable times.
func (s *Simulated) Fetch(_ context.Context) (model.Status, error) {
	now := s.now()
	battery := s.BatteryAt(now)
	charging := battery < s.cfg.ChargeCutoffPercent

	st := model.Status{
		VehicleID:      s.cfg.VehicleID,
		VehicleName:    s.cfg.VehicleName,
		BatteryPercent: battery,
		RangeKM:        battery * s.cfg.KMPerPercent,
		Charging:       charging,
		CapturedAt:     now,
		Simulated:      true,
	}
	if charging {
		power := s.cfg.ChargePowerKW
		st.ChargePowerKW = &power
	}
	st.Normalize()
	return st, nil
}
