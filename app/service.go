// Package app wires the configured components into a running service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mgrande/ladevakt/api/history"
	"github.com/mgrande/ladevakt/config"
	"github.com/mgrande/ladevakt/core/decision"
	corehistory "github.com/mgrande/ladevakt/core/history"
	coremetrics "github.com/mgrande/ladevakt/core/metrics"
	"github.com/mgrande/ladevakt/core/model"
	"github.com/mgrande/ladevakt/core/orchestrator"
	"github.com/mgrande/ladevakt/core/source"
	"github.com/mgrande/ladevakt/infra/auth"
	"github.com/mgrande/ladevakt/infra/geocode"
	infrahistory "github.com/mgrande/ladevakt/infra/history"
	"github.com/mgrande/ladevakt/infra/hub"
	"github.com/mgrande/ladevakt/infra/logger"
	"github.com/mgrande/ladevakt/infra/metrics"
	"github.com/mgrande/ladevakt/infra/mqtt"
	"github.com/mgrande/ladevakt/infra/tesla"
	"github.com/mgrande/ladevakt/internal/eventbus"
)

// Service holds the wired components of a running instance.
type Service struct {
	cfg   *config.Config
	log   logger.Logger
	store corehistory.Store
	hub   *hub.Hub
	orch  *orchestrator.Orchestrator
	bus   *eventbus.TypedBus[coremetrics.CycleEvent]
	sink  coremetrics.Sink
	mqtt  *mqtt.Publisher

	// Auth is exported so the CLI can install a token pair obtained from
	// the interactive authorization flow.
	Auth *auth.Store
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	var store corehistory.Store
	if cfg.History.Path != "" {
		s, err := infrahistory.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
		store = s
	} else {
		log.Warnf("no history path configured, readings are kept in memory only")
		store = corehistory.NewMemoryStore()
	}

	svc := &Service{cfg: cfg, log: log, store: store}

	sources, err := svc.buildSources()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sink, err := metrics.New(cfg.Metrics, logger.New("metrics"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("metric sink: %w", err)
	}
	svc.sink = sink

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.mqtt = pub
	}

	svc.hub = hub.New(logger.New("hub"))
	svc.bus = eventbus.NewTyped[coremetrics.CycleEvent]()
	engine := decision.New(cfg.Decision)
	svc.orch = orchestrator.New(cfg.Update, sources, engine, store, svc.hub, svc.bus,
		logger.New("orchestrator"))
	return svc, nil
}

func (s *Service) buildSources() ([]source.Source, error) {
	var sources []source.Source
	if s.cfg.Tesla.Enabled {
		store, err := auth.NewStore(s.cfg.Tesla.Auth, logger.New("auth"))
		if err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		s.Auth = store

		var geo tesla.Geocoder
		if s.cfg.Geocode.Enabled {
			geo = geocode.New(s.cfg.Geocode, logger.New("geocode"))
		}
		sources = append(sources, tesla.New(s.cfg.Tesla.API, store, geo, logger.New("tesla")))
	}
	for _, simCfg := range s.cfg.Simulators {
		sources = append(sources, source.NewSimulated(simCfg))
	}
	return sources, nil
}

// Orchestrator exposes the update loop, e.g. for one-shot CLI cycles.
func (s *Service) Orchestrator() *orchestrator.Orchestrator { return s.orch }

// Run starts all components and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	go s.forwardCycleEvents()

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.Handler())
	history.NewHandler(s.store, logger.New("api")).Register(mux)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	go func() {
		s.log.Infof("listening on %s", s.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("http server: %v", err)
		}
	}()

	err := s.orch.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// handleRefresh lets clients request an immediate update cycle.
func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.orch.TriggerUpdate()
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"refresh scheduled"}`))
}

// forwardCycleEvents feeds bus events to the metric sink and the optional
// MQTT publisher. The orchestrator stays unaware of either.
func (s *Service) forwardCycleEvents() {
	events := s.bus.Subscribe()
	for ev := range events {
		if err := s.sink.RecordCycle(ev); err != nil {
			s.log.Errorf("record cycle metrics: %v", err)
		}
		if s.mqtt != nil {
			payload := cyclePayload(ev)
			if err := s.mqtt.PublishPayload(payload); err != nil {
				s.log.Errorf("publish cycle to mqtt: %v", err)
			}
		}
	}
}

// cyclePayload rebuilds the subscriber payload from a cycle event for the
// MQTT topic.
func cyclePayload(ev coremetrics.CycleEvent) model.Payload {
	p := model.Payload{
		Type:            model.PayloadStatusUpdate,
		Timestamp:       ev.Timestamp,
		Snapshots:       make(map[string]model.Status, len(ev.Snapshots)),
		Recommendations: ev.Recommendations,
		PriorityVehicle: ev.PriorityVehicle,
	}
	for _, st := range ev.Snapshots {
		p.Snapshots[st.VehicleID] = st
	}
	return p
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	s.hub.Close()
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	return s.store.Close()
}
