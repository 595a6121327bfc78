// Package orchestrator runs the periodic refresh cycle: fetch all sources,
// derive recommendations, persist, then broadcast.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mgrande/ladevakt/core/decision"
	"github.com/mgrande/ladevakt/core/history"
	"github.com/mgrande/ladevakt/core/logger"
	"github.com/mgrande/ladevakt/core/metrics"
	"github.com/mgrande/ladevakt/core/model"
	"github.com/mgrande/ladevakt/core/source"
	"github.com/mgrande/ladevakt/internal/eventbus"
)

// Config defines the cycle cadence and retention policy.
type Config struct {
	// IntervalMinutes is the time between automatic refresh cycles.
	IntervalMinutes int `json:"interval_minutes"`
	// RetentionDays is how long history records are kept.
	RetentionDays int `json:"retention_days"`
	// CleanupIntervalHours is the time between retention sweeps.
	CleanupIntervalHours int `json:"cleanup_interval_hours"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.IntervalMinutes == 0 {
		c.IntervalMinutes = 15
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 90
	}
	if c.CleanupIntervalHours == 0 {
		c.CleanupIntervalHours = 24
	}
}

// Validate checks cadence bounds.
func (c Config) Validate() error {
	if c.IntervalMinutes < 1 {
		return fmt.Errorf("interval_minutes must be at least 1, got %d", c.IntervalMinutes)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1, got %d", c.RetentionDays)
	}
	return nil
}

// Broadcaster receives the payload of each completed cycle.
type Broadcaster interface {
	Broadcast(p model.Payload)
}

// Orchestrator drives the refresh cycle. Cycles never overlap: the ticker,
// manual triggers and the startup cycle are all served by one goroutine.
type Orchestrator struct {
	cfg     Config
	sources []source.Source
	engine  *decision.Engine
	store   history.Store
	hub     Broadcaster
	bus     *eventbus.TypedBus[metrics.CycleEvent]
	log     logger.Logger
	now     func() time.Time

	// trigger coalesces manual refresh requests. Capacity 1: a request
	// arriving while one is already pending merges into it.
	trigger chan struct{}
}

// New creates an Orchestrator.
func New(cfg Config, sources []source.Source, engine *decision.Engine, store history.Store,
	hub Broadcaster, bus *eventbus.TypedBus[metrics.CycleEvent], log logger.Logger) *Orchestrator {
	cfg.SetDefaults()
	return &Orchestrator{
		cfg:     cfg,
		sources: sources,
		engine:  engine,
		store:   store,
		hub:     hub,
		bus:     bus,
		log:     log,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// TriggerUpdate requests an immediate refresh cycle. Safe from any
// goroutine; requests arriving while one is pending are coalesced.
func (o *Orchestrator) TriggerUpdate() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run executes refresh cycles until ctx is canceled. One cycle runs
// immediately on startup so subscribers are never left waiting a full
// interval for the first payload.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := time.Duration(o.cfg.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	cleanup := time.NewTicker(time.Duration(o.cfg.CleanupIntervalHours) * time.Hour)
	defer cleanup.Stop()

	o.log.Infof("update loop started, interval %s, %d sources", interval, len(o.sources))
	o.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			o.log.Infof("update loop stopped")
			return ctx.Err()
		case <-ticker.C:
			o.RunCycle(ctx)
		case <-o.trigger:
			o.log.Infof("manual refresh triggered")
			o.RunCycle(ctx)
		case <-cleanup.C:
			o.runCleanup(ctx)
		}
	}
}

type fetchResult struct {
	vehicleID string
	status    model.Status
	err       error
}

// RunCycle executes one refresh cycle and returns the broadcast payload.
// Failing sources are skipped; the cycle proceeds with whatever succeeded.
func (o *Orchestrator) RunCycle(ctx context.Context) model.Payload {
	started := o.now()

	results := make([]fetchResult, len(o.sources))
	var wg sync.WaitGroup
	for i, src := range o.sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			st, err := src.Fetch(ctx)
			results[i] = fetchResult{vehicleID: src.VehicleID(), status: st, err: err}
		}(i, src)
	}
	wg.Wait()

	var snapshots []model.Status
	var failures []metrics.FetchFailure
	for _, res := range results {
		if res.err != nil {
			kind := source.Kind(res.err)
			o.log.Errorf("fetch %s failed (%s): %v", res.vehicleID, kind, res.err)
			failures = append(failures, metrics.FetchFailure{VehicleID: res.vehicleID, Kind: kind})
			if err := o.store.SaveError(ctx, res.vehicleID, kind, res.err.Error()); err != nil {
				o.log.Errorf("record fetch error for %s: %v", res.vehicleID, err)
			}
			continue
		}
		snapshots = append(snapshots, res.status)
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].VehicleID < snapshots[j].VehicleID })

	recs, priority := o.engine.RecommendAll(snapshots)

	payload := model.Payload{
		Type:            model.PayloadStatusUpdate,
		Timestamp:       o.now(),
		Snapshots:       make(map[string]model.Status, len(snapshots)),
		Recommendations: recs,
		PriorityVehicle: priority,
	}
	for _, st := range snapshots {
		payload.Snapshots[st.VehicleID] = st
	}

	// Persist before broadcasting: a subscriber that reacts to the payload
	// by querying history must find the cycle it was told about.
	for _, st := range snapshots {
		if err := o.store.SaveSnapshot(ctx, st); err != nil {
			o.log.Errorf("persist snapshot %s: %v", st.VehicleID, err)
		}
	}
	for _, rec := range recs {
		if err := o.store.SaveRecommendation(ctx, rec); err != nil {
			o.log.Errorf("persist recommendation %s: %v", rec.VehicleID, err)
		}
	}

	o.hub.Broadcast(payload)

	duration := o.now().Sub(started)
	o.log.Infof("cycle done in %s: %d vehicles, %d failures, priority %s",
		duration, len(snapshots), len(failures), priority)
	if o.bus != nil {
		o.bus.Publish(metrics.CycleEvent{
			Timestamp:       started,
			Duration:        duration,
			PriorityVehicle: priority,
			Snapshots:       snapshots,
			Recommendations: recs,
			Failures:        failures,
		})
	}
	return payload
}

func (o *Orchestrator) runCleanup(ctx context.Context) {
	cutoff := o.now().AddDate(0, 0, -o.cfg.RetentionDays)
	if err := o.store.DeleteOlderThan(ctx, cutoff); err != nil {
		o.log.Errorf("history cleanup: %v", err)
		return
	}
	o.log.Infof("history cleanup done, removed records before %s", cutoff.Format(time.RFC3339))
}
