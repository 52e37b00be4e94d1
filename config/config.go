// Package config loads the loadguard configuration file with koanf. Every
// section applies its own defaults and validation.
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

	"github.com/kilianp07/loadguard/core/factory"
	"github.com/kilianp07/loadguard/core/metrics"
	"github.com/kilianp07/loadguard/core/plan"
	planlog "github.com/kilianp07/loadguard/core/plan/logging"
	"github.com/kilianp07/loadguard/infra/monitoring"
	"github.com/kilianp07/loadguard/infra/mqtt"
)

type Config struct {
	Capacity CapacityConfig       `json:"capacity"`
	Engine   plan.Config          `json:"engine"`
	Budget   BudgetConfig         `json:"budget"`
	Devices  []DeviceConfig       `json:"devices"`
	Modes    ModesConfig          `json:"modes"`
	Price    PriceConfig          `json:"price"`
	MQTT     mqtt.Config          `json:"mqtt"`
	Metrics  metrics.Config       `json:"metrics"`
	Store    factory.ModuleConfig `json:"store"`
	Logging  LoggingConfig        `json:"logging"`
	PlanLog  planlog.Config       `json:"plan_log"`
	Sentry   monitoring.Config    `json:"sentry"`
	API      APIConfig            `json:"api"`
}

// Load reads path, applies K_ environment overrides (K_CAPACITY__LIMIT_KW
// sets capacity.limit_kw), then defaults and validation.
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
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
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

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Capacity.SetDefaults()
	c.Engine.SetDefaults()
	c.PlanLog.SetDefaults()
	c.Logging.SetDefaults()
	c.API.SetDefaults()
	c.Price.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	validators := []func() error{
		c.Capacity.Validate,
		c.Engine.Validate,
		c.Budget.Validate,
		c.Modes.Validate,
		c.Price.Validate,
		c.MQTT.Validate,
		c.PlanLog.Validate,
		c.Logging.Validate,
		c.Sentry.Validate,
		c.validateDevices,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) validateDevices() error {
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}
