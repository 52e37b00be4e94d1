package plan

import (
	"fmt"
	"time"
)

// Config defines the plan engine timing and hysteresis parameters. Durations
// are expressed in seconds like the rest of the configuration file.
type Config struct {
	// Hourly energy budget in kWh. Zero disables the hourly energy cap.
	HourlyBudgetKWh float64 `json:"hourly_budget_kwh"`

	ShedCooldownSeconds       int `json:"shed_cooldown_seconds"`
	RestoreCooldownSeconds    int `json:"restore_cooldown_seconds"`
	RestoreCooldownMaxSeconds int `json:"restore_cooldown_max_seconds"`
	StabilityWindowSeconds    int `json:"stability_window_seconds"`
	RecentRestoreGraceSeconds int `json:"recent_restore_grace_seconds"`
	RecentShedWindowSeconds   int `json:"recent_shed_window_seconds"`
	SwapTimeoutSeconds        int `json:"swap_timeout_seconds"`
	SnapshotThrottleSeconds   int `json:"snapshot_throttle_seconds"`
	RefreshIntervalSeconds    int `json:"refresh_interval_seconds"`
	PruneIntervalSeconds      int `json:"prune_interval_seconds"`
	ActuationTimeoutSeconds   int `json:"actuation_timeout_seconds"`
	InventoryTimeoutSeconds   int `json:"inventory_timeout_seconds"`

	SeverityBypassKW       float64 `json:"severity_bypass_kw"`
	MinRestoreHysteresisKW float64 `json:"min_restore_hysteresis_kw"`
	RecentShedMultiplier   float64 `json:"recent_shed_multiplier"`
	RecentShedExtraKW      float64 `json:"recent_shed_extra_kw"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	def := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&c.ShedCooldownSeconds, 60)
	def(&c.RestoreCooldownSeconds, 60)
	def(&c.RestoreCooldownMaxSeconds, 300)
	def(&c.StabilityWindowSeconds, 900)
	def(&c.RecentRestoreGraceSeconds, 180)
	def(&c.RecentShedWindowSeconds, 300)
	def(&c.SwapTimeoutSeconds, 180)
	def(&c.SnapshotThrottleSeconds, 30)
	def(&c.RefreshIntervalSeconds, 60)
	def(&c.PruneIntervalSeconds, 3600)
	def(&c.ActuationTimeoutSeconds, 10)
	def(&c.InventoryTimeoutSeconds, 5)
	if c.SeverityBypassKW <= 0 {
		c.SeverityBypassKW = 1.0
	}
	if c.MinRestoreHysteresisKW <= 0 {
		c.MinRestoreHysteresisKW = 0.2
	}
	if c.RecentShedMultiplier <= 0 {
		c.RecentShedMultiplier = 1.5
	}
	if c.RecentShedExtraKW <= 0 {
		c.RecentShedExtraKW = 0.5
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.HourlyBudgetKWh < 0 {
		return fmt.Errorf("engine: hourly_budget_kwh must be >= 0")
	}
	if c.RestoreCooldownMaxSeconds < c.RestoreCooldownSeconds {
		return fmt.Errorf("engine: restore_cooldown_max_seconds (%d) below restore_cooldown_seconds (%d)",
			c.RestoreCooldownMaxSeconds, c.RestoreCooldownSeconds)
	}
	if c.RecentShedMultiplier < 1 {
		return fmt.Errorf("engine: recent_shed_multiplier must be >= 1")
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c Config) shedCooldown() time.Duration     { return seconds(c.ShedCooldownSeconds) }
func (c Config) restoreBase() time.Duration      { return seconds(c.RestoreCooldownSeconds) }
func (c Config) restoreMax() time.Duration       { return seconds(c.RestoreCooldownMaxSeconds) }
func (c Config) stabilityWindow() time.Duration  { return seconds(c.StabilityWindowSeconds) }
func (c Config) restoreGrace() time.Duration     { return seconds(c.RecentRestoreGraceSeconds) }
func (c Config) recentShedWindow() time.Duration { return seconds(c.RecentShedWindowSeconds) }
func (c Config) swapTimeout() time.Duration      { return seconds(c.SwapTimeoutSeconds) }
func (c Config) snapshotThrottle() time.Duration { return seconds(c.SnapshotThrottleSeconds) }
func (c Config) refreshInterval() time.Duration  { return seconds(c.RefreshIntervalSeconds) }
func (c Config) pruneInterval() time.Duration    { return seconds(c.PruneIntervalSeconds) }
func (c Config) actuationTimeout() time.Duration { return seconds(c.ActuationTimeoutSeconds) }
func (c Config) inventoryTimeout() time.Duration { return seconds(c.InventoryTimeoutSeconds) }
