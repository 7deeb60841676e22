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

	"github.com/firefly-dispatch/firefly/core/autoscaler"
	"github.com/firefly-dispatch/firefly/core/metrics"
	"github.com/firefly-dispatch/firefly/infra/fleet"
	"github.com/firefly-dispatch/firefly/infra/mqtt"
	infraregistry "github.com/firefly-dispatch/firefly/infra/registry"
)

type Config struct {
	MQTT       mqtt.Config          `json:"mqtt"`
	Redis      infraregistry.Config `json:"redis"`
	Dispatch   DispatchConfig       `json:"dispatch"`
	Autoscaler autoscaler.Config    `json:"autoscaler"`
	Intel      IntelConfig          `json:"intel"`
	Fleet      fleet.Config         `json:"fleet"`
	Metrics    metrics.Config       `json:"metrics"`
	Simulator  SimulatorConfig      `json:"simulator"`
}

// DispatchConfig tunes the coordinator's auction timing.
type DispatchConfig struct {
	BidDeadlineMS   int64 `json:"bid_deadline_ms"`
	CollectBufferMS int64 `json:"collect_buffer_ms"`
}

// SetDefaults applies the stock auction timing.
func (c *DispatchConfig) SetDefaults() {
	if c.BidDeadlineMS <= 0 {
		c.BidDeadlineMS = 2000
	}
	if c.CollectBufferMS <= 0 {
		c.CollectBufferMS = 200
	}
}

// Validate checks the auction timing is usable.
func (c DispatchConfig) Validate() error {
	if c.BidDeadlineMS < 100 {
		return fmt.Errorf("bid_deadline_ms %d too short, units cannot respond", c.BidDeadlineMS)
	}
	return nil
}

// IntelConfig selects the intelligence providers for bid scoring.
type IntelConfig struct {
	// Provider is "mock" or "none".
	Provider  string `json:"provider"`
	TimeoutMS int64  `json:"timeout_ms"`
	Seed      int64  `json:"seed"`
}

// SetDefaults applies the stock provider settings.
func (c *IntelConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "mock"
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 2000
	}
}

// Validate rejects unknown providers.
func (c IntelConfig) Validate() error {
	switch c.Provider {
	case "mock", "none":
		return nil
	default:
		return fmt.Errorf("unknown intel provider %q", c.Provider)
	}
}

// SimulatorConfig sizes the embedded unit fleet.
type SimulatorConfig struct {
	Enabled     bool    `json:"enabled"`
	PoliceUnits int     `json:"police_units"`
	FireUnits   int     `json:"fire_units"`
	EMSUnits    int     `json:"ems_units"`
	CenterLat   float64 `json:"center_lat"`
	CenterLon   float64 `json:"center_lon"`
	SpreadKM    float64 `json:"spread_km"`
	Seed        int64   `json:"seed"`
}

// SetDefaults applies a small mixed fleet around the default center.
func (c *SimulatorConfig) SetDefaults() {
	if c.PoliceUnits <= 0 {
		c.PoliceUnits = 2
	}
	if c.FireUnits <= 0 {
		c.FireUnits = 2
	}
	if c.EMSUnits <= 0 {
		c.EMSUnits = 2
	}
	if c.SpreadKM <= 0 {
		c.SpreadKM = 10
	}
}

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
	// Optional environment overrides
	if err := k.Load(env.Provider("FD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatch.SetDefaults()
	cfg.Intel.SetDefaults()
	cfg.Simulator.SetDefaults()
	if err := cfg.Dispatch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Intel.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
