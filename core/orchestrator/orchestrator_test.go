package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrande/ladevakt/core/decision"
	"github.com/mgrande/ladevakt/core/history"
	"github.com/mgrande/ladevakt/core/metrics"
	"github.com/mgrande/ladevakt/core/model"
	"github.com/mgrande/ladevakt/core/source"
	"github.com/mgrande/ladevakt/infra/logger"
	"github.com/mgrande/ladevakt/internal/eventbus"
)

type stubSource struct {
	id      string
	status  model.Status
	err     error
	fetches int
	mu      sync.Mutex
}

func (s *stubSource) VehicleID() string { return s.id }

func (s *stubSource) Fetch(context.Context) (model.Status, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	if s.err != nil {
		return model.Status{}, s.err
	}
	return s.status, nil
}

type recordingHub struct {
	mu       sync.Mutex
	payloads []model.Payload
	// snapshotCount records how many snapshots were already persisted when
	// each broadcast arrived.
	persisted []int
	store     *history.MemoryStore
}

func (h *recordingHub) Broadcast(p model.Payload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, p)
	if h.store != nil {
		snaps, _ := h.store.Query(context.Background(), history.Query{})
		h.persisted = append(h.persisted, len(snaps))
	}
}

func stub(id string, battery float64, charging bool) *stubSource {
	return &stubSource{id: id, status: model.Status{
		VehicleID:      id,
		VehicleName:    id,
		BatteryPercent: battery,
		Charging:       charging,
		CapturedAt:     time.Now(),
	}}
}

func newOrchestrator(sources []source.Source, store history.Store, hub Broadcaster,
	bus *eventbus.TypedBus[metrics.CycleEvent]) *Orchestrator {
	engine := decision.New(decision.Config{ThresholdPercent: 80, MinimumChargePercent: 20})
	return New(Config{}, sources, engine, store, hub, bus, logger.NopLogger{})
}

func TestRunCycleBuildsPayload(t *testing.T) {
	store := history.NewMemoryStore()
	hub := &recordingHub{}
	o := newOrchestrator([]source.Source{
		stub("a", 50, false),
		stub("b", 90, false),
	}, store, hub, nil)

	p := o.RunCycle(context.Background())

	assert.Equal(t, model.PayloadStatusUpdate, p.Type)
	require.Len(t, p.Snapshots, 2)
	assert.Equal(t, "a", p.PriorityVehicle)
	assert.Equal(t, model.ActionCharge, p.Recommendations["a"].Action)
	assert.Equal(t, model.ActionNoCharge, p.Recommendations["b"].Action)

	require.Len(t, hub.payloads, 1)
	snaps, err := store.Query(context.Background(), history.Query{})
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Len(t, store.Recommendations(), 2)
}

func TestRunCycleToleratesFailingSource(t *testing.T) {
	store := history.NewMemoryStore()
	hub := &recordingHub{}
	o := newOrchestrator([]source.Source{
		stub("a", 50, false),
		&stubSource{id: "b", err: &source.UnavailableError{Msg: "vehicle asleep"}},
	}, store, hub, nil)

	p := o.RunCycle(context.Background())

	require.Len(t, p.Snapshots, 1)
	assert.Contains(t, p.Snapshots, "a")
	assert.Equal(t, "a", p.PriorityVehicle)

	errs := store.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "b", errs[0].Source)
	assert.Equal(t, "source_unavailable", errs[0].Kind)
}

func TestRunCycleAllSourcesFail(t *testing.T) {
	store := history.NewMemoryStore()
	hub := &recordingHub{}
	o := newOrchestrator([]source.Source{
		&stubSource{id: "a", err: &source.TransientError{StatusCode: 502, Msg: "bad gateway"}},
	}, store, hub, nil)

	p := o.RunCycle(context.Background())

	assert.Empty(t, p.Snapshots)
	assert.Equal(t, model.PriorityNone, p.PriorityVehicle)
	require.Len(t, hub.payloads, 1, "an empty cycle is still broadcast")
}

func TestRunCyclePersistsBeforeBroadcast(t *testing.T) {
	store := history.NewMemoryStore()
	hub := &recordingHub{store: store}
	o := newOrchestrator([]source.Source{stub("a", 50, false)}, store, hub, nil)

	o.RunCycle(context.Background())

	require.Len(t, hub.persisted, 1)
	assert.Equal(t, 1, hub.persisted[0], "snapshot must be queryable when the broadcast fires")
}

func TestRunCyclePublishesEvent(t *testing.T) {
	store := history.NewMemoryStore()
	bus := eventbus.NewTyped[metrics.CycleEvent]()
	events := bus.Subscribe()
	o := newOrchestrator([]source.Source{
		stub("a", 50, false),
		&stubSource{id: "b", err: &source.RateLimitError{Msg: "throttled"}},
	}, store, &recordingHub{}, bus)

	o.RunCycle(context.Background())

	select {
	case ev := <-events:
		assert.Equal(t, "a", ev.PriorityVehicle)
		require.Len(t, ev.Failures, 1)
		assert.Equal(t, "rate_limited", ev.Failures[0].Kind)
		require.Len(t, ev.Snapshots, 1)
	case <-time.After(time.Second):
		t.Fatal("no cycle event published")
	}
}

func TestTriggerUpdateCoalesces(t *testing.T) {
	o := newOrchestrator(nil, history.NewMemoryStore(), &recordingHub{}, nil)
	for i := 0; i < 5; i++ {
		o.TriggerUpdate()
	}
	assert.Len(t, o.trigger, 1, "pending manual triggers merge into one")
}

func TestRunServesTrigger(t *testing.T) {
	store := history.NewMemoryStore()
	hub := &recordingHub{}
	src := stub("a", 50, false)
	o := newOrchestrator([]source.Source{src}, store, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(done)
	}()

	// Startup cycle plus one manual trigger.
	deadline := time.Now().Add(2 * time.Second)
	for {
		src.mu.Lock()
		n := src.fetches
		src.mu.Unlock()
		if n >= 1 {
			break
		}
		require.True(t, time.Now().Before(deadline))
		time.Sleep(5 * time.Millisecond)
	}
	o.TriggerUpdate()
	for {
		src.mu.Lock()
		n := src.fetches
		src.mu.Unlock()
		if n >= 2 {
			break
		}
		require.True(t, time.Now().Before(deadline))
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop on cancel")
	}
}

func TestCleanupRemovesOldRecords(t *testing.T) {
	store := history.NewMemoryStore()
	old := model.Status{VehicleID: "a", CapturedAt: time.Now().AddDate(0, 0, -120)}
	recent := model.Status{VehicleID: "a", CapturedAt: time.Now()}
	require.NoError(t, store.SaveSnapshot(context.Background(), old))
	require.NoError(t, store.SaveSnapshot(context.Background(), recent))

	o := newOrchestrator(nil, store, &recordingHub{}, nil)
	o.runCleanup(context.Background())

	snaps, err := store.Query(context.Background(), history.Query{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}
