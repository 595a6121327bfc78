package source

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSimulatedDeterministic(t *testing.T) {
	cfg := SimulatorConfig{
		VehicleID:        "sim1",
		BaselinePercent:  70,
		AmplitudePercent: 20,
		PeriodHours:      4,
		FloorPercent:     0,
		CeilPercent:      100,
	}
	s := NewSimulated(cfg)

	// At a phase multiple of the period the sine term vanishes.
	at := time.Unix(0, 0).Add(8 * time.Hour)
	s.SetClock(fixedClock(at))
	st, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 70, st.BatteryPercent, 1e-6)
	assert.True(t, st.Simulated)
	assert.Equal(t, at, st.CapturedAt)

	// Quarter period: sine peaks at +1.
	s.SetClock(fixedClock(time.Unix(0, 0).Add(1 * time.Hour)))
	st, err = s.Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 90, st.BatteryPercent, 1e-6)

	// Same instant, same value.
	again, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, st.BatteryPercent, again.BatteryPercent)
}

func TestSimulatedClampsToFloorAndCeil(t *testing.T) {
	cfg := SimulatorConfig{
		VehicleID:        "sim1",
		BaselinePercent:  70,
		AmplitudePercent: 50,
		PeriodHours:      4,
		FloorPercent:     30,
		CeilPercent:      90,
	}
	s := NewSimulated(cfg)
	// Trough: baseline - amplitude = 20, below the floor.
	s.SetClock(fixedClock(time.Unix(0, 0).Add(3 * time.Hour)))
	st, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30.0, st.BatteryPercent)
	// Peak: baseline + amplitude = 120, above the ceiling.
	s.SetClock(fixedClock(time.Unix(0, 0).Add(1 * time.Hour)))
	st, err = s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90.0, st.BatteryPercent)
}

func TestSimulatedChargingTransition(t *testing.T) {
	cfg := SimulatorConfig{
		VehicleID:           "sim1",
		BaselinePercent:     50,
		AmplitudePercent:    30,
		PeriodHours:         4,
		FloorPercent:        0,
		CeilPercent:         100,
		ChargeCutoffPercent: 40,
		ChargePowerKW:       10.5,
	}
	s := NewSimulated(cfg)

	// Trough (3h): 50-30=20, under the cutoff: charging.
	s.SetClock(fixedClock(time.Unix(0, 0).Add(3 * time.Hour)))
	st, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Charging)
	require.NotNil(t, st.ChargePowerKW)
	assert.Equal(t, 10.5, *st.ChargePowerKW)

	// Peak (1h): 80, above the cutoff: not charging.
	s.SetClock(fixedClock(time.Unix(0, 0).Add(1 * time.Hour)))
	st, err = s.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Charging)
	assert.Nil(t, st.ChargePowerKW)
}

func TestSimulatedRangeFromBattery(t *testing.T) {
	cfg := SimulatorConfig{
		VehicleID:        "sim1",
		BaselinePercent:  60,
		AmplitudePercent: 0,
		PeriodHours:      4,
		FloorPercent:     0,
		CeilPercent:      100,
		KMPerPercent:     4.8,
	}
	s := NewSimulated(cfg)
	s.SetClock(fixedClock(time.Unix(0, 0)))
	st, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 60*4.8, st.RangeKM, 1e-6)
}

func TestTwoSimulatorsDiverge(t *testing.T) {
	a := NewSimulated(SimulatorConfig{VehicleID: "a", BaselinePercent: 70, AmplitudePercent: 20, PeriodHours: 4, CeilPercent: 100, FloorPercent: 1})
	b := NewSimulated(SimulatorConfig{VehicleID: "b", BaselinePercent: 65, AmplitudePercent: 25, PeriodHours: 3, CeilPercent: 100, FloorPercent: 1})
	at := time.Unix(0, 0).Add(90 * time.Minute)
	a.SetClock(fixedClock(at))
	b.SetClock(fixedClock(at))
	sa, err := a.Fetch(context.Background())
	require.NoError(t, err)
	sb, err := b.Fetch(context.Background())
	require.NoError(t, err)
	assert.Greater(t, math.Abs(sa.BatteryPercent-sb.BatteryPercent), 1e-3)
}

func TestSimulatorConfigValidate(t *testing.T) {
	assert.Error(t, SimulatorConfig{PeriodHours: 1}.Validate())
	assert.Error(t, SimulatorConfig{VehicleID: "x", PeriodHours: 1, FloorPercent: 90, CeilPercent: 10}.Validate())
	cfg := SimulatorConfig{VehicleID: "x"}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
}
