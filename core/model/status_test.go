package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeClampsBattery(t *testing.T) {
	cases := []struct {
		name    string
		battery float64
		want    float64
	}{
		{"far below range", -5, 0},
		{"just below range", -0.1, 0},
		{"lower bound", 0, 0},
		{"in range", 62.5, 62.5},
		{"upper bound", 100, 100},
		{"just above range", 100.1, 100},
		{"far above range", 150, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := Status{VehicleID: "a", BatteryPercent: tc.battery, RangeKM: 100}
			st.Normalize()
			assert.Equal(t, tc.want, st.BatteryPercent)
		})
	}
}

func TestNormalizeClampsRange(t *testing.T) {
	st := Status{VehicleID: "a", BatteryPercent: 50, RangeKM: -12}
	st.Normalize()
	assert.Equal(t, 0.0, st.RangeKM)
}

func TestClampBounds(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 100))
	assert.Equal(t, 100.0, Clamp(101, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}
