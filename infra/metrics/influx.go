package metrics

import (
	"context"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mgrande/ladevakt/core/logger"
	coremetrics "github.com/mgrande/ladevakt/core/metrics"
)

// InfluxSink writes cycle events to an InfluxDB instance.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string, log logger.Logger) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      log,
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a missing database never blocks
// startup.
func NewInfluxSinkWithFallback(url, token, org, bucket string, log logger.Logger) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			log.Errorf("influx health check error: %v", err)
		} else {
			log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCycle implements coremetrics.Sink.
func (s *InfluxSink) RecordCycle(ev coremetrics.CycleEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cycle := write.NewPointWithMeasurement("refresh_cycle").
		AddTag("priority_vehicle", ev.PriorityVehicle).
		AddField("duration_seconds", ev.Duration.Seconds()).
		AddField("vehicles", len(ev.Snapshots)).
		AddField("failures", len(ev.Failures)).
		SetTime(ev.Timestamp)
	if err := s.writeAPI.WritePoint(ctx, cycle); err != nil {
		return err
	}

	for _, st := range ev.Snapshots {
		p := write.NewPointWithMeasurement("vehicle_status").
			AddTag("vehicle_id", st.VehicleID).
			AddField("battery_percent", st.BatteryPercent).
			AddField("range_km", st.RangeKM).
			AddField("charging", st.Charging).
			AddField("stale", st.Stale).
			SetTime(st.CapturedAt)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	for _, f := range ev.Failures {
		p := write.NewPointWithMeasurement("fetch_error").
			AddTag("vehicle_id", f.VehicleID).
			AddTag("kind", f.Kind).
			AddField("count", 1).
			SetTime(ev.Timestamp)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the Influx client.
func (s *InfluxSink) Close() { s.client.Close() }
