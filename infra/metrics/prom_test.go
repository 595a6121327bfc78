package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/mgrande/ladevakt/core/metrics"
	"github.com/mgrande/ladevakt/core/model"
)

func TestPromSinkRecordsCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	require.NoError(t, err)

	ev := coremetrics.CycleEvent{
		Timestamp:       time.Now(),
		Duration:        2 * time.Second,
		PriorityVehicle: "tesla",
		Snapshots: []model.Status{
			{VehicleID: "tesla", BatteryPercent: 62, Charging: true},
			{VehicleID: "sim", BatteryPercent: 80},
		},
		Failures: []coremetrics.FetchFailure{
			{VehicleID: "tesla", Kind: "source_unavailable"},
		},
	}
	require.NoError(t, sink.RecordCycle(ev))
	require.NoError(t, sink.RecordCycle(ev))

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.cycles))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.fetchErrors.WithLabelValues("tesla", "source_unavailable")))
	assert.Equal(t, 62.0, testutil.ToFloat64(sink.battery.WithLabelValues("tesla")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.charging.WithLabelValues("tesla")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.charging.WithLabelValues("sim")))
}

func TestPromSinkReregistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSink(reg)
	require.NoError(t, err)
	b, err := NewPromSink(reg)
	require.NoError(t, err)

	a.cycles.Inc()
	b.cycles.Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(a.cycles), "both sinks share the registered collector")
}

func TestMultiSinkFansOut(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom, err := NewPromSink(reg)
	require.NoError(t, err)
	multi := NewMultiSink(prom, coremetrics.NopSink{})

	require.NoError(t, multi.RecordCycle(coremetrics.CycleEvent{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.cycles))
}
