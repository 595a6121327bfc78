package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrande/ladevakt/core/model"
)

func TestComputeStats(t *testing.T) {
	snaps := []model.Status{
		{VehicleID: "a", BatteryPercent: 40, Charging: true},
		{VehicleID: "a", BatteryPercent: 60},
		{VehicleID: "a", BatteryPercent: 80},
		{VehicleID: "b", BatteryPercent: 90},
	}
	stats := ComputeStats(snaps)
	require.Len(t, stats, 2)

	a := stats[0]
	assert.Equal(t, "a", a.VehicleID)
	assert.Equal(t, 3, a.Samples)
	assert.InDelta(t, 60, a.MeanPercent, 1e-9)
	assert.InDelta(t, 20, a.StdDevPercent, 1e-9)
	assert.Equal(t, 40.0, a.MinPercent)
	assert.Equal(t, 80.0, a.MaxPercent)
	assert.InDelta(t, 1.0/3.0, a.ChargingShare, 1e-9)

	b := stats[1]
	assert.Equal(t, "b", b.VehicleID)
	assert.Equal(t, 1, b.Samples)
	assert.Equal(t, 0.0, b.StdDevPercent)
}

func TestComputeStatsEmpty(t *testing.T) {
	assert.Empty(t, ComputeStats(nil))
}
