// Package geocode resolves GPS coordinates to human-readable addresses via
// the Nominatim (OpenStreetMap) reverse geocoding API. Failures here are
// never fatal: callers degrade to raw coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mgrande/ladevakt/core/logger"
)

// Error wraps any reverse geocoding failure.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("geocode: %s", e.Msg) }

// Config parameterizes the Nominatim client.
type Config struct {
	Enabled bool `json:"enabled"`
	// Endpoint defaults to the public Nominatim instance.
	Endpoint string `json:"endpoint"`
	// Language for the returned address, e.g. "no".
	Language string `json:"language"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://nominatim.openstreetmap.org/reverse"
	}
	if c.Language == "" {
		c.Language = "no"
	}
}

// Client queries Nominatim.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// New creates a Client.
func New(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 5 * time.Second},
		log:  log,
	}
}

// SetHTTPClient overrides the HTTP client, used by tests.
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		Postcode    string `json:"postcode"`
	} `json:"address"`
}

// ReverseGeocode converts coordinates to an address string.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("accept-language", c.cfg.Language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", &Error{Msg: err.Error()}
	}
	// Required by the Nominatim usage policy.
	req.Header.Set("User-Agent", "ladevakt/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Msg: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Msg: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var data nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", &Error{Msg: fmt.Sprintf("decode response: %v", err)}
	}

	var parts []string
	if data.Address.Road != "" {
		road := data.Address.Road
		if data.Address.HouseNumber != "" {
			road += " " + data.Address.HouseNumber
		}
		parts = append(parts, road)
	}
	city := data.Address.City
	if city == "" {
		city = data.Address.Town
	}
	if city == "" {
		city = data.Address.Village
	}
	if city != "" {
		parts = append(parts, city)
	}
	if data.Address.Postcode != "" {
		parts = append(parts, data.Address.Postcode)
	}
	if len(parts) == 0 {
		if data.DisplayName == "" {
			return "", &Error{Msg: "empty address"}
		}
		return data.DisplayName, nil
	}
	addr := strings.Join(parts, ", ")
	c.log.Debugf("geocoded (%.6f, %.6f) to %s", lat, lon, addr)
	return addr, nil
}

// FormatCoordinates renders coordinates as a fallback address string.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}
