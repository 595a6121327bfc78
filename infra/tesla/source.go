// Package tesla implements the live vehicle source against the Tesla Fleet
// API. Fetches go through the credential store for a bearer token, are
// cached for a freshness window, and degrade to the last cached snapshot
// when the vehicle is asleep or the API is briefly unhealthy.
package tesla

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mgrande/ladevakt/core/logger"
	"github.com/mgrande/ladevakt/core/model"
	"github.com/mgrande/ladevakt/core/source"
)

const milesToKM = 1.60934

// TokenProvider yields a valid access token for the Fleet API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Geocoder resolves coordinates to an address. Optional; failures degrade
// the snapshot's address field to absent.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Config parameterizes the live source.
type Config struct {
	// VehicleID is the internal identifier used in payloads and history.
	VehicleID string `json:"vehicle_id"`
	// VehicleTag is the Fleet API vehicle identifier (id or VIN).
	VehicleTag string `json:"vehicle_tag"`
	// APIURL is the Fleet API base URL for the account's region.
	APIURL string `json:"api_url"`
	// CacheTTLSeconds is the freshness window within which a fetch reuses
	// the previous snapshot without a network call.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
	// MaxRetries bounds the backoff retries on 429/5xx responses.
	MaxRetries int `json:"max_retries"`
	// RetryInitialMS is the initial backoff interval.
	RetryInitialMS int `json:"retry_initial_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.VehicleID == "" {
		c.VehicleID = "tesla"
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = 300
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInitialMS == 0 {
		c.RetryInitialMS = 500
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.VehicleTag == "" {
		return fmt.Errorf("vehicle_tag is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	return nil
}

// Source is a live vehicle source. It serializes fetches per vehicle; the
// cached snapshot is its only mutable state.
type Source struct {
	cfg    Config
	tokens TokenProvider
	geo    Geocoder
	http   *http.Client
	log    logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    model.Status
	haveCache bool
	fetchedAt time.Time
}

// New creates a live source. geo may be nil.
func New(cfg Config, tokens TokenProvider, geo Geocoder, log logger.Logger) *Source {
	cfg.SetDefaults()
	return &Source{
		cfg:    cfg,
		tokens: tokens,
		geo:    geo,
		http:   &http.Client{Timeout: 15 * time.Second},
		log:    log,
		now:    time.Now,
	}
}

// SetHTTPClient overrides the HTTP client, used by tests.
func (s *Source) SetHTTPClient(c *http.Client) { s.http = c }

// SetClock overrides the time source, used by tests.
func (s *Source) SetClock(now func() time.Time) { s.now = now }

// VehicleID implements source.Source.
func (s *Source) VehicleID() string { return s.cfg.VehicleID }

// Fetch implements source.Source.
func (s *Source) Fetch(ctx context.Context) (model.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ttl := time.Duration(s.cfg.CacheTTLSeconds) * time.Second
	if s.haveCache && now.Sub(s.fetchedAt) < ttl {
		s.log.Debugf("%s: using cached snapshot (%s old)", s.cfg.VehicleID, now.Sub(s.fetchedAt))
		return s.cached, nil
	}

	st, err := s.fetchRemote(ctx)
	if err != nil {
		if s.haveCache && degradable(err) {
			s.log.Warnf("%s: fetch failed (%v), returning stale cached snapshot", s.cfg.VehicleID, err)
			stale := s.cached
			stale.Stale = true
			return stale, nil
		}
		return model.Status{}, err
	}

	// Timestamps never go backwards per vehicle, even if the upstream
	// clock drifts against a previous fetch.
	if s.haveCache && st.CapturedAt.Before(s.cached.CapturedAt) {
		st.CapturedAt = s.cached.CapturedAt
	}
	s.cached = st
	s.haveCache = true
	s.fetchedAt = now
	return st, nil
}

// degradable reports whether the error class allows falling back to cached
// data. Auth errors never do: the operator must act on them.
func degradable(err error) bool {
	return source.IsUnavailable(err) || source.IsRateLimit(err) || source.IsTransient(err)
}

type vehicleData struct {
	Response struct {
		DisplayName string `json:"display_name"`
		ChargeState struct {
			BatteryLevel       float64 `json:"battery_level"`
			BatteryRange       float64 `json:"battery_range"`
			ChargingState      string  `json:"charging_state"`
			ChargerPower       float64 `json:"charger_power"`
			MinutesToFullCharg float64 `json:"minutes_to_full_charge"`
		} `json:"charge_state"`
		DriveState struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		} `json:"drive_state"`
	} `json:"response"`
}

func (s *Source) fetchRemote(ctx context.Context) (model.Status, error) {
	var data vehicleData
	op := func() error {
		tok, err := s.tokens.Token(ctx)
		if err != nil {
			// AuthError propagates as-is; not retryable here.
			return backoff.Permanent(err)
		}
		url := fmt.Sprintf("%s/api/1/vehicles/%s/vehicle_data", s.cfg.APIURL, s.cfg.VehicleTag)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := s.http.Do(req)
		if err != nil {
			return fmt.Errorf("fleet api request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
				return backoff.Permanent(fmt.Errorf("decode vehicle data: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusRequestTimeout:
			// The Fleet API answers 408 while the vehicle is asleep.
			return backoff.Permanent(&source.UnavailableError{Msg: "vehicle asleep"})
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(&source.AuthError{Msg: fmt.Sprintf("fleet api status %d", resp.StatusCode)})
		case resp.StatusCode == http.StatusTooManyRequests:
			return &source.RateLimitError{Msg: "fleet api throttling"}
		case resp.StatusCode >= 500:
			return &source.TransientError{StatusCode: resp.StatusCode, Msg: "fleet api error"}
		default:
			return backoff.Permanent(fmt.Errorf("fleet api unexpected status %d", resp.StatusCode))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(s.cfg.RetryInitialMS) * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxRetries)), ctx)); err != nil {
		return model.Status{}, err
	}
	return s.mapStatus(ctx, data), nil
}

func (s *Source) mapStatus(ctx context.Context, data vehicleData) model.Status {
	r := data.Response
	now := s.now()

	name := r.DisplayName
	if name == "" {
		name = s.cfg.VehicleID
	}
	charging := r.ChargeState.ChargingState == "Charging" || r.ChargeState.ChargingState == "Starting"

	st := model.Status{
		VehicleID:      s.cfg.VehicleID,
		VehicleName:    name,
		BatteryPercent: r.ChargeState.BatteryLevel,
		RangeKM:        r.ChargeState.BatteryRange * milesToKM,
		Charging:       charging,
		Latitude:       r.DriveState.Latitude,
		Longitude:      r.DriveState.Longitude,
		CapturedAt:     now,
	}
	if charging && r.ChargeState.ChargerPower > 0 {
		power := r.ChargeState.ChargerPower
		st.ChargePowerKW = &power
	}
	if charging && r.ChargeState.MinutesToFullCharg > 0 {
		full := now.Add(time.Duration(r.ChargeState.MinutesToFullCharg) * time.Minute)
		st.EstimatedFull = &full
	}
	if s.geo != nil && st.Latitude != nil && st.Longitude != nil {
		addr, err := s.geo.ReverseGeocode(ctx, *st.Latitude, *st.Longitude)
		if err != nil {
			s.log.Warnf("%s: reverse geocode failed: %v", s.cfg.VehicleID, err)
		} else {
			st.Address = addr
		}
	}
	st.Normalize()
	return st
}
