package history

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mgrande/ladevakt/core/model"
)

// Stats summarizes the battery trajectory of one vehicle over a history
// window.
type Stats struct {
	VehicleID     string  `json:"vehicle_id"`
	Samples       int     `json:"samples"`
	MeanPercent   float64 `json:"mean_percent"`
	StdDevPercent float64 `json:"stddev_percent"`
	MinPercent    float64 `json:"min_percent"`
	MaxPercent    float64 `json:"max_percent"`
	ChargingShare float64 `json:"charging_share"`
}

// ComputeStats aggregates snapshots per vehicle. The result is ordered by
// vehicle ID.
func ComputeStats(snaps []model.Status) []Stats {
	byVehicle := map[string][]model.Status{}
	for _, st := range snaps {
		byVehicle[st.VehicleID] = append(byVehicle[st.VehicleID], st)
	}
	out := make([]Stats, 0, len(byVehicle))
	for id, group := range byVehicle {
		levels := make([]float64, len(group))
		charging := 0
		min, max := group[0].BatteryPercent, group[0].BatteryPercent
		for i, st := range group {
			levels[i] = st.BatteryPercent
			if st.BatteryPercent < min {
				min = st.BatteryPercent
			}
			if st.BatteryPercent > max {
				max = st.BatteryPercent
			}
			if st.Charging {
				charging++
			}
		}
		s := Stats{
			VehicleID:     id,
			Samples:       len(group),
			MeanPercent:   stat.Mean(levels, nil),
			MinPercent:    min,
			MaxPercent:    max,
			ChargingShare: float64(charging) / float64(len(group)),
		}
		if len(levels) > 1 {
			s.StdDevPercent = stat.StdDev(levels, nil)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}
