package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/loadguard/core/capacity"
	"github.com/kilianp07/loadguard/core/factory"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/settings"
)

// CapacityConfig is the instantaneous power limit.
type CapacityConfig struct {
	LimitKW               float64 `json:"limit_kw"`
	MarginKW              float64 `json:"margin_kw"`
	ShortfallEnterSeconds int     `json:"shortfall_enter_seconds"`
	ShortfallExitSeconds  int     `json:"shortfall_exit_seconds"`
}

// SetDefaults applies the shortfall debounce defaults.
func (c *CapacityConfig) SetDefaults() {
	if c.ShortfallEnterSeconds <= 0 {
		c.ShortfallEnterSeconds = 30
	}
	if c.ShortfallExitSeconds <= 0 {
		c.ShortfallExitSeconds = 60
	}
}

// Validate checks the limit and margin.
func (c CapacityConfig) Validate() error {
	if c.LimitKW <= 0 {
		return fmt.Errorf("capacity: limit_kw must be > 0")
	}
	if c.MarginKW < 0 || c.MarginKW >= c.LimitKW {
		return fmt.Errorf("capacity: margin_kw must be in [0, limit_kw)")
	}
	return nil
}

// Guard converts the section to a capacity.Config.
func (c CapacityConfig) Guard() capacity.Config {
	return capacity.Config{
		LimitKW:    c.LimitKW,
		MarginKW:   c.MarginKW,
		EnterDelay: time.Duration(c.ShortfallEnterSeconds) * time.Second,
		ExitDelay:  time.Duration(c.ShortfallExitSeconds) * time.Second,
	}
}

// BudgetConfig enables the daily energy budget. Zero disables it.
type BudgetConfig struct {
	DailyKWh float64 `json:"daily_kwh"`
	Frozen   bool    `json:"frozen"`
}

func (c BudgetConfig) Validate() error {
	if c.DailyKWh < 0 {
		return fmt.Errorf("budget: daily_kwh must be >= 0")
	}
	return nil
}

// DeviceConfig holds per-device settings. Static devices are planned even
// when the hub never publishes a snapshot for them.
type DeviceConfig struct {
	ID       string                     `json:"id"`
	Name     string                     `json:"name"`
	Priority int                        `json:"priority"`
	Shed     settings.ShedBehavior      `json:"shed"`
	Price    settings.PriceOptimization `json:"price"`
	Static   bool                       `json:"static"`
	PowerKW  float64                    `json:"power_kw"`
}

func (d DeviceConfig) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.Priority < 0 {
		return fmt.Errorf("%s: priority must be >= 0", d.ID)
	}
	switch d.Shed.Action {
	case "", model.ShedTurnOff:
	case model.ShedSetTemperature:
		if d.Shed.Temperature == nil {
			return fmt.Errorf("%s: set_temperature needs shed.temperature", d.ID)
		}
	default:
		return fmt.Errorf("%s: unknown shed action %q", d.ID, d.Shed.Action)
	}
	if d.Static && d.PowerKW <= 0 {
		return fmt.Errorf("%s: static devices need power_kw", d.ID)
	}
	return nil
}

// ModesConfig maps operating modes to per-device targets.
type ModesConfig struct {
	Active  string                        `json:"active"`
	Targets map[string]map[string]float64 `json:"targets"`
}

func (c ModesConfig) Validate() error {
	if c.Active == "" {
		return nil
	}
	if _, ok := c.Targets[c.Active]; !ok {
		return fmt.Errorf("modes: active mode %q has no targets", c.Active)
	}
	return nil
}

// PriceConfig lists cheap and expensive hours of the day in Timezone. When
// Source is set the hours are refreshed from a day-ahead price feed.
type PriceConfig struct {
	CheapHours     []int                `json:"cheap_hours"`
	ExpensiveHours []int                `json:"expensive_hours"`
	Timezone       string               `json:"timezone"`
	Source         factory.ModuleConfig `json:"source"`
	CheapCount     int                  `json:"cheap_count"`
	ExpensiveCount int                  `json:"expensive_count"`
	RefreshMinutes int                  `json:"refresh_minutes"`
}

// FeedEnabled reports whether a price feed is configured.
func (c PriceConfig) FeedEnabled() bool { return c.Source.Type != "" }

func (c *PriceConfig) SetDefaults() {
	if !c.FeedEnabled() {
		return
	}
	if c.CheapCount == 0 {
		c.CheapCount = 4
	}
	if c.ExpensiveCount == 0 {
		c.ExpensiveCount = 4
	}
	if c.RefreshMinutes == 0 {
		c.RefreshMinutes = 60
	}
}

// Location returns the time zone the hours refer to.
func (c PriceConfig) Location() (*time.Location, error) { return c.location() }

func (c PriceConfig) Validate() error {
	if c.CheapCount < 0 || c.ExpensiveCount < 0 || c.CheapCount+c.ExpensiveCount > 24 {
		return fmt.Errorf("price: cheap_count and expensive_count must be positive and fit in a day")
	}
	if c.RefreshMinutes < 0 {
		return fmt.Errorf("price: refresh_minutes must not be negative")
	}
	for _, h := range append(append([]int{}, c.CheapHours...), c.ExpensiveHours...) {
		if h < 0 || h > 23 {
			return fmt.Errorf("price: hour %d out of range", h)
		}
	}
	if _, err := c.location(); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	return nil
}

func (c PriceConfig) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// APIConfig configures the HTTP API. Addr "-" disables it.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// SettingsOptions seeds the runtime settings store.
func (c Config) SettingsOptions() (settings.Options, error) {
	loc, err := c.Price.location()
	if err != nil {
		return settings.Options{}, err
	}
	opts := settings.Options{
		Priorities:     map[string]int{},
		ShedBehaviors:  map[string]settings.ShedBehavior{},
		Modes:          c.Modes.Targets,
		ActiveMode:     c.Modes.Active,
		Price:          map[string]settings.PriceOptimization{},
		CheapHours:     c.Price.CheapHours,
		ExpensiveHours: c.Price.ExpensiveHours,
		Location:       loc,
	}
	for _, d := range c.Devices {
		if d.Priority > 0 {
			opts.Priorities[d.ID] = d.Priority
		}
		if d.Shed.Action != "" {
			opts.ShedBehaviors[d.ID] = d.Shed
		}
		if d.Price.Enabled {
			opts.Price[d.ID] = d.Price
		}
	}
	return opts, nil
}

// StaticDevices returns the devices flagged static as inventory seeds.
func (c Config) StaticDevices() []model.Device {
	var out []model.Device
	for _, d := range c.Devices {
		if !d.Static {
			continue
		}
		kw := d.PowerKW
		out = append(out, model.Device{
			ID:           d.ID,
			Name:         d.Name,
			Priority:     d.Priority,
			Controllable: true,
			CurrentOn:    true,
			PowerKW:      &kw,
		})
	}
	return out
}
