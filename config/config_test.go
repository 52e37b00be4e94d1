package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loadguard/core/model"
)

const sample = `capacity:
  limit_kw: 9
  margin_kw: 0.5
engine:
  hourly_budget_kwh: 8
  restore_cooldown_seconds: 90
budget:
  daily_kwh: 120
devices:
  - id: boiler
    name: Water heater
    priority: 50
  - id: thermo
    priority: 10
    shed:
      action: set_temperature
      temperature: 16
    price:
      enabled: true
      cheap_delta: 2
      expensive_delta: -3
  - id: pump
    static: true
    power_kw: 1.5
modes:
  active: home
  targets:
    home:
      thermo: 21
    away:
      thermo: 17
price:
  cheap_hours: [1, 2, 3]
  expensive_hours: [18, 19]
  timezone: UTC
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  qos:
    command: 1
metrics:
  sinks:
    - type: "nop"
store:
  type: sqlite
  conf:
    path: /tmp/loadguard.db
plan_log:
  backend: rotating
  path: /tmp/plans.jsonl
sentry:
  dsn: ""
`

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", sample))
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"limit", cfg.Capacity.LimitKW, 9.0},
		{"enter_delay", cfg.Capacity.Guard().EnterDelay, 30 * time.Second},
		{"exit_delay", cfg.Capacity.Guard().ExitDelay, 60 * time.Second},
		{"hourly_budget", cfg.Engine.HourlyBudgetKWh, 8.0},
		{"restore_cooldown", cfg.Engine.RestoreCooldownSeconds, 90},
		{"shed_cooldown_default", cfg.Engine.ShedCooldownSeconds, 60},
		{"daily", cfg.Budget.DailyKWh, 120.0},
		{"devices", len(cfg.Devices), 3},
		{"shed_action", cfg.Devices[1].Shed.Action, model.ShedSetTemperature},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"qos", cfg.MQTT.QoS["command"], byte(1)},
		{"mqtt_prefix_default", cfg.MQTT.TopicPrefix, "loadguard"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"store", cfg.Store.Type, "sqlite"},
		{"store_path", cfg.Store.Conf["path"], "/tmp/loadguard.db"},
		{"plan_log", cfg.PlanLog.Backend, "rotating"},
		{"plan_log_backups", cfg.PlanLog.MaxBackups, 5},
		{"log_level", cfg.Logging.Level, "info"},
		{"api", cfg.API.Addr, ":8080"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_CAPACITY__LIMIT_KW", "12")
	cfg, err := Load(writeConfig(t, "config.yaml", sample))
	require.NoError(t, err)
	assert.Equal(t, 12.0, cfg.Capacity.LimitKW)
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{"capacity":{"limit_kw":5,"margin_kw":0.3}}`))
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Capacity.LimitKW)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadPriceFeedDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", "capacity: {limit_kw: 5}\nprice: {source: {type: wholesale_market}, timezone: Europe/Paris}"))
	require.NoError(t, err)
	assert.True(t, cfg.Price.FeedEnabled())
	assert.Equal(t, 4, cfg.Price.CheapCount)
	assert.Equal(t, 4, cfg.Price.ExpensiveCount)
	assert.Equal(t, 60, cfg.Price.RefreshMinutes)
	loc, err := cfg.Price.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())

	cfg, err = Load(writeConfig(t, "config.yaml", "capacity: {limit_kw: 5}"))
	require.NoError(t, err)
	assert.False(t, cfg.Price.FeedEnabled())
	assert.Zero(t, cfg.Price.CheapCount)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"no_limit":        `capacity: {margin_kw: 1}`,
		"margin":          "capacity: {limit_kw: 2, margin_kw: 3}",
		"duplicate":       "capacity: {limit_kw: 5}\ndevices: [{id: a}, {id: a}]",
		"shed_temp":       "capacity: {limit_kw: 5}\ndevices: [{id: a, shed: {action: set_temperature}}]",
		"static_power":    "capacity: {limit_kw: 5}\ndevices: [{id: a, static: true}]",
		"mode":            "capacity: {limit_kw: 5}\nmodes: {active: night}",
		"hour":            "capacity: {limit_kw: 5}\nprice: {cheap_hours: [24]}",
		"timezone":        "capacity: {limit_kw: 5}\nprice: {timezone: Mars/Olympus}",
		"level":           "capacity: {limit_kw: 5}\nlogging: {level: loud}",
		"plan_log":        "capacity: {limit_kw: 5}\nplan_log: {backend: csv}",
		"sentry_rate":     "capacity: {limit_kw: 5}\nsentry: {traces_sample_rate: 2}",
		"engine_cooldown": "capacity: {limit_kw: 5}\nengine: {restore_cooldown_seconds: 600, restore_cooldown_max_seconds: 300}",
		"price_counts":    "capacity: {limit_kw: 5}\nprice: {source: {type: wholesale_market}, cheap_count: 20, expensive_count: 10}",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}
	_, err := Load(writeConfig(t, "config.toml", ""))
	assert.Error(t, err)
}

func TestSettingsOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", sample))
	require.NoError(t, err)

	opts, err := cfg.SettingsOptions()
	require.NoError(t, err)
	assert.Equal(t, 50, opts.Priorities["boiler"])
	assert.NotContains(t, opts.Priorities, "pump")
	assert.Equal(t, model.ShedSetTemperature, opts.ShedBehaviors["thermo"].Action)
	assert.Equal(t, -3.0, opts.Price["thermo"].ExpensiveDelta)
	assert.Equal(t, "home", opts.ActiveMode)
	assert.Equal(t, time.UTC, opts.Location)

	static := cfg.StaticDevices()
	require.Len(t, static, 1)
	assert.Equal(t, "pump", static[0].ID)
	assert.Equal(t, 1.5, static[0].EffectivePowerKW())
}
