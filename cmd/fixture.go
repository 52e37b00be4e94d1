package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/loadguard/core/model"
)

// fixture is a device snapshot plus one metered sample used by the plan
// command.
type fixture struct {
	TotalKW      float64        `json:"total_kw" yaml:"total_kw"`
	ControlledKW *float64       `json:"controlled_kw,omitempty" yaml:"controlled_kw,omitempty"`
	Devices      []model.Device `json:"devices" yaml:"devices"`
}

// loadFixture loads a fixture from a JSON or YAML file.
func loadFixture(path string) (fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return fixture{}, err
	}
	defer f.Close()
	return decodeFixture(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// decodeFixture reads from r to decode a fixture.
func decodeFixture(r io.Reader, format string) (fixture, error) {
	var fx fixture
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
			return fx, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&fx); err != nil {
			return fx, err
		}
	default:
		return fx, fmt.Errorf("unsupported format: %s", format)
	}
	for i, d := range fx.Devices {
		if d.ID == "" {
			return fx, fmt.Errorf("devices[%d]: id is required", i)
		}
	}
	if fx.TotalKW < 0 {
		return fx, fmt.Errorf("total_kw must be >= 0")
	}
	return fx, nil
}
