package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/loadguard/core/model"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker      string
	TopicPrefix string
	DevicesFile string
	BaseLoadKW  float64
	Interval    time.Duration
	AckLatency  time.Duration
	DropRate    float64
	Verbose     bool
}

func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate must be within [0,1]")
	}
	if c.BaseLoadKW < 0 {
		return fmt.Errorf("base load must not be negative")
	}
	return nil
}

// householdFile is the YAML layout of the simulated household.
type householdFile struct {
	BaseLoadKW float64        `yaml:"base_load_kw"`
	Devices    []model.Device `yaml:"devices"`
}

func readHousehold(path string) (householdFile, error) {
	var h householdFile
	data, err := os.ReadFile(path)
	if err != nil {
		return h, err
	}
	if err := yaml.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, d := range h.Devices {
		if d.ID == "" {
			return h, fmt.Errorf("device %d has no id", i)
		}
	}
	return h, nil
}

// defaultHousehold is used when no devices file is given.
func defaultHousehold() householdFile {
	return householdFile{
		BaseLoadKW: 0.8,
		Devices: []model.Device{
			{ID: "water_heater", Name: "Water heater", Priority: 80, PowerKW: model.Float(2.4), CurrentOn: true, Controllable: true},
			{ID: "ev_charger", Name: "EV charger", Priority: 60, PowerKW: model.Float(7.4), CurrentOn: true, Controllable: true},
			{
				ID: "living_room", Name: "Living room heating", Priority: 20, PowerKW: model.Float(1.5), CurrentOn: true, Controllable: true,
				Targets: []model.Target{{ID: "target_temperature", Value: model.Float(21), Unit: "C"}},
			},
		},
	}
}
