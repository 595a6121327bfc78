// Package config loads and validates the application configuration from a
// YAML or JSON file, with environment overrides under the LV_ prefix.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mgrande/ladevakt/core/decision"
	coremetrics "github.com/mgrande/ladevakt/core/metrics"
	"github.com/mgrande/ladevakt/core/orchestrator"
	"github.com/mgrande/ladevakt/core/source"
	"github.com/mgrande/ladevakt/infra/auth"
	"github.com/mgrande/ladevakt/infra/geocode"
	"github.com/mgrande/ladevakt/infra/mqtt"
	"github.com/mgrande/ladevakt/infra/tesla"
)

// TeslaConfig groups the live-source settings.
type TeslaConfig struct {
	Enabled bool         `json:"enabled"`
	Auth    auth.Config  `json:"auth"`
	API     tesla.Config `json:"api"`
}

// HistoryConfig selects the persistence backend.
type HistoryConfig struct {
	// Path to the SQLite database file. Empty selects the in-memory store.
	Path string `json:"path"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8765"
	}
}

// Config is the root application configuration.
type Config struct {
	Update     orchestrator.Config      `json:"update"`
	Decision   decision.Config          `json:"decision"`
	Tesla      TeslaConfig              `json:"tesla"`
	Simulators []source.SimulatorConfig `json:"simulators"`
	History    HistoryConfig            `json:"history"`
	Server     ServerConfig             `json:"server"`
	Metrics    coremetrics.Config       `json:"metrics"`
	MQTT       mqtt.Config              `json:"mqtt"`
	Geocode    geocode.Config           `json:"geocode"`
}

// SetDefaults applies defaults across all sections.
func (c *Config) SetDefaults() {
	c.Update.SetDefaults()
	c.Decision.SetDefaults()
	c.Tesla.API.SetDefaults()
	for i := range c.Simulators {
		c.Simulators[i].SetDefaults()
	}
	c.Server.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
	c.Geocode.SetDefaults()
}

// Validate checks all sections and that at least one source is configured.
func (c Config) Validate() error {
	if err := c.Update.Validate(); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if err := c.Decision.Validate(); err != nil {
		return fmt.Errorf("decision: %w", err)
	}
	if c.Tesla.Enabled {
		if err := c.Tesla.Auth.Validate(); err != nil {
			return fmt.Errorf("tesla.auth: %w", err)
		}
		if err := c.Tesla.API.Validate(); err != nil {
			return fmt.Errorf("tesla.api: %w", err)
		}
	}
	for i, sim := range c.Simulators {
		if err := sim.Validate(); err != nil {
			return fmt.Errorf("simulators[%d]: %w", i, err)
		}
	}
	if !c.Tesla.Enabled && len(c.Simulators) == 0 {
		return fmt.Errorf("no vehicle sources configured")
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// Load reads the configuration file, applies LV_ environment overrides,
// defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. LV_TESLA__AUTH__CLIENT_SECRET.
	if err := k.Load(env.Provider("LV_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "lv_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
