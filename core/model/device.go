package model

// DefaultPriority is used for devices that have no configured priority.
// Lower numbers are more important.
const DefaultPriority = 100

// DefaultPowerKW is assumed for devices without any power estimate.
const DefaultPowerKW = 1.0

// Target describes one settable capability of a device, for example a
// thermostat setpoint.
type Target struct {
	ID    string   `json:"id" yaml:"id"`
	Value *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Unit  string   `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Device is the snapshot of one load as reported by the device inventory.
type Device struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Targets      []Target `json:"targets,omitempty" yaml:"targets,omitempty"`
	Priority     int      `json:"priority,omitempty" yaml:"priority,omitempty"` // 0 means unset
	CurrentOn    bool     `json:"current_on" yaml:"current_on"`
	Controllable bool     `json:"controllable" yaml:"controllable"`
	Zone         string   `json:"zone,omitempty" yaml:"zone,omitempty"`

	// Power estimates in kW, in order of preference.
	MeasuredPowerKW *float64 `json:"measured_power_kw,omitempty" yaml:"measured_power_kw,omitempty"`
	ExpectedPowerKW *float64 `json:"expected_power_kw,omitempty" yaml:"expected_power_kw,omitempty"`
	PowerKW         *float64 `json:"power_kw,omitempty" yaml:"power_kw,omitempty"`
}

// EffectivePowerKW returns the best available power estimate: measured, then
// expected, then nominal, else DefaultPowerKW. Non-positive readings are
// skipped.
func (d Device) EffectivePowerKW() float64 {
	for _, p := range []*float64{d.MeasuredPowerKW, d.ExpectedPowerKW, d.PowerKW} {
		if p != nil && *p > 0 {
			return *p
		}
	}
	return DefaultPowerKW
}

// EffectivePriority returns the configured priority or DefaultPriority.
func (d Device) EffectivePriority() int {
	if d.Priority == 0 {
		return DefaultPriority
	}
	return d.Priority
}

// DisplayName returns the name, falling back to the id.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// PrimaryTarget returns the first target carrying a value.
func (d Device) PrimaryTarget() (Target, bool) {
	for _, t := range d.Targets {
		if t.Value != nil {
			return t, true
		}
	}
	return Target{}, false
}

// Float returns a pointer to v. It keeps literal-heavy call sites short.
func Float(v float64) *float64 { return &v }
