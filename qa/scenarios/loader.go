// Package scenarios replays YAML descriptions of a household against the plan
// engine and checks the resulting plan.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/loadguard/core/model"
)

type DeviceDef struct {
	ID       string  `yaml:"id"`
	Priority int     `yaml:"priority"`
	PowerKW  float64 `yaml:"power_kw"`
	On       bool    `yaml:"on"`
}

func (d DeviceDef) ToModel() model.Device {
	return model.Device{
		ID:           d.ID,
		Name:         d.ID,
		Priority:     d.Priority,
		PowerKW:      model.Float(d.PowerKW),
		CurrentOn:    d.On,
		Controllable: true,
	}
}

// StepDef is one metered sample followed by a planning cycle.
type StepDef struct {
	AfterSeconds int     `yaml:"after_seconds"`
	TotalKW      float64 `yaml:"total_kw"`
}

type Expected struct {
	Shed     []string `yaml:"shed"`
	Commands int      `yaml:"commands"`
}

type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	LimitKW     float64     `yaml:"limit_kw"`
	MarginKW    float64     `yaml:"margin_kw"`
	Devices     []DeviceDef `yaml:"devices"`
	Steps       []StepDef   `yaml:"steps"`
	// FailDevices never accept commands.
	FailDevices []string `yaml:"fail_devices,omitempty"`
	Expected    Expected `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
