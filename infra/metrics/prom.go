// Package metrics implements the cycle event sinks: Prometheus gauges and
// counters, InfluxDB time series, and a fan-out combining them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/mgrande/ladevakt/core/metrics"
)

// PromSink exposes refresh-cycle state as Prometheus metrics.
type PromSink struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	fetchErrors   *prometheus.CounterVec
	battery       *prometheus.GaugeVec
	charging      *prometheus.GaugeVec
}

// NewPromSink registers the collectors on reg. If reg is nil, the default
// registerer is used. Already-registered collectors are reused so repeated
// construction is safe.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ladevakt_cycles_total",
		Help: "Total number of completed refresh cycles",
	})
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ladevakt_cycle_duration_seconds",
		Help:    "Wall time of a refresh cycle",
		Buckets: prometheus.DefBuckets,
	})
	fetchErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ladevakt_fetch_errors_total",
		Help: "Failed source fetches by vehicle and error kind",
	}, []string{"vehicle_id", "kind"})
	battery := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ladevakt_vehicle_battery_percent",
		Help: "Last observed battery level per vehicle",
	}, []string{"vehicle_id"})
	charging := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ladevakt_vehicle_charging",
		Help: "Whether the vehicle was charging at the last observation",
	}, []string{"vehicle_id"})

	if err := reg.Register(cycles); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			cycles = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(cycleDuration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			cycleDuration = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fetchErrors); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fetchErrors = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(battery); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			battery = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(charging); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			charging = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		cycles:        cycles,
		cycleDuration: cycleDuration,
		fetchErrors:   fetchErrors,
		battery:       battery,
		charging:      charging,
	}, nil
}

// RecordCycle implements coremetrics.Sink.
func (s *PromSink) RecordCycle(ev coremetrics.CycleEvent) error {
	s.cycles.Inc()
	s.cycleDuration.Observe(ev.Duration.Seconds())
	for _, f := range ev.Failures {
		s.fetchErrors.WithLabelValues(f.VehicleID, f.Kind).Inc()
	}
	for _, st := range ev.Snapshots {
		s.battery.WithLabelValues(st.VehicleID).Set(st.BatteryPercent)
		v := 0.0
		if st.Charging {
			v = 1.0
		}
		s.charging.WithLabelValues(st.VehicleID).Set(v)
	}
	return nil
}
