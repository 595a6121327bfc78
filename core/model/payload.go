package model

import (
	"encoding/json"
	"time"
)

// Payload message types on the realtime subscriber protocol.
const (
	PayloadStatusUpdate  = "status_update"
	PayloadInitialStatus = "initial_status"
)

// Payload is the combined result of one refresh cycle as delivered to
// realtime subscribers. Snapshots are keyed by vehicle ID and spliced into
// the top-level JSON object, matching the wire protocol:
//
//	{"type":"status_update","timestamp":...,"<vehicle_id>":{...},
//	 "recommendations":{...},"priority_vehicle":"NONE"}
type Payload struct {
	Type            string
	Timestamp       time.Time
	Snapshots       map[string]Status
	Recommendations map[string]Recommendation
	PriorityVehicle string
}

// WithType returns a copy of the payload with the given type discriminator.
// Used to replay the last cycle as an initial_status to late subscribers.
func (p Payload) WithType(t string) Payload {
	p.Type = t
	return p
}

// MarshalJSON flattens the per-vehicle snapshots into the top-level object.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Snapshots)+4)
	out["type"] = p.Type
	out["timestamp"] = p.Timestamp.Format(time.RFC3339)
	for id, st := range p.Snapshots {
		out[id] = st
	}
	recs := p.Recommendations
	if recs == nil {
		recs = map[string]Recommendation{}
	}
	out["recommendations"] = recs
	pv := p.PriorityVehicle
	if pv == "" {
		pv = PriorityNone
	}
	out["priority_vehicle"] = pv
	return json.Marshal(out)
}
