package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadMarshalSplicesSnapshots(t *testing.T) {
	ts := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	p := Payload{
		Type:      PayloadStatusUpdate,
		Timestamp: ts,
		Snapshots: map[string]Status{
			"tesla": {VehicleID: "tesla", VehicleName: "Bilen", BatteryPercent: 62, CapturedAt: ts},
			"sim1":  {VehicleID: "sim1", VehicleName: "Sim", BatteryPercent: 80, CapturedAt: ts},
		},
		Recommendations: map[string]Recommendation{
			"tesla": {VehicleID: "tesla", Action: ActionCharge, Urgency: 18, CreatedAt: ts},
		},
		PriorityVehicle: "tesla",
	}

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))

	assert.Equal(t, "status_update", out["type"])
	assert.Equal(t, "2026-01-10T12:00:00Z", out["timestamp"])
	assert.Equal(t, "tesla", out["priority_vehicle"])

	vehicle, ok := out["tesla"].(map[string]any)
	require.True(t, ok, "snapshots are keyed by vehicle ID at the top level")
	assert.Equal(t, 62.0, vehicle["battery_percent"])
	assert.Contains(t, out, "sim1")

	recs := out["recommendations"].(map[string]any)
	rec := recs["tesla"].(map[string]any)
	assert.Equal(t, "CHARGE", rec["action"])
	assert.Equal(t, 18.0, rec["priority_score"])
}

func TestPayloadMarshalEmptyCycle(t *testing.T) {
	p := Payload{Type: PayloadStatusUpdate, Timestamp: time.Unix(0, 0).UTC()}

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))

	recs, ok := out["recommendations"].(map[string]any)
	require.True(t, ok, "recommendations serialize as an object, never null")
	assert.Empty(t, recs)
	assert.Equal(t, "NONE", out["priority_vehicle"])
}

func TestPayloadWithType(t *testing.T) {
	p := Payload{Type: PayloadStatusUpdate, PriorityVehicle: "a"}
	replay := p.WithType(PayloadInitialStatus)
	assert.Equal(t, PayloadInitialStatus, replay.Type)
	assert.Equal(t, PayloadStatusUpdate, p.Type, "the original payload is unchanged")
	assert.Equal(t, "a", replay.PriorityVehicle)
}
