package model

import "time"

// State is the coarse on/off view of a device in a plan.
type State string

const (
	StateKeep State = "keep"
	StateShed State = "shed"
)

// ShedAction describes how a device is shed.
type ShedAction string

const (
	ShedTurnOff        ShedAction = "turn_off"
	ShedSetTemperature ShedAction = "set_temperature"
)

// LimitSource records which soft limit is binding in a cycle.
type LimitSource string

const (
	LimitCapacity LimitSource = "capacity"
	LimitDaily    LimitSource = "daily"
	LimitBoth     LimitSource = "both"
)

// AllowsShortfall reports whether a deficit against this limit may escalate
// to a capacity shortfall. Daily-only deficits never do.
func (s LimitSource) AllowsShortfall() bool {
	return s == LimitCapacity || s == LimitBoth
}

// PlanMeta carries the cycle-wide figures a plan was computed from.
type PlanMeta struct {
	TotalKW                *float64    `json:"total_kw,omitempty"`
	SoftLimitKW            float64     `json:"soft_limit_kw"`
	CapacitySoftLimitKW    float64     `json:"capacity_soft_limit_kw"`
	DailySoftLimitKW       *float64    `json:"daily_soft_limit_kw,omitempty"`
	SoftLimitSource        LimitSource `json:"soft_limit_source"`
	HeadroomKW             *float64    `json:"headroom_kw,omitempty"`
	UsedKWh                float64     `json:"used_kwh"`
	BudgetKWh              float64     `json:"budget_kwh"`
	HourlyBudgetExhausted  bool        `json:"hourly_budget_exhausted"`
	SheddingActive         bool        `json:"shedding_active"`
	InShortfall            bool        `json:"in_shortfall"`
	RestoreCooldownSeconds float64     `json:"restore_cooldown_seconds"`
}

// PlannedDevice is the decision for a single device.
type PlannedDevice struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Priority        int        `json:"priority"`
	PowerKW         float64    `json:"power_kw"`
	Controllable    bool       `json:"controllable"`
	CurrentOn       bool       `json:"current_on"`
	Zone            string     `json:"zone,omitempty"`
	CurrentState    State      `json:"current_state"`
	PlannedState    State      `json:"planned_state"`
	CurrentTarget   *float64   `json:"current_target,omitempty"`
	PlannedTarget   *float64   `json:"planned_target,omitempty"`
	TargetID        string     `json:"target_id,omitempty"`
	Reason          Reason     `json:"reason_detail"`
	ReasonText      string     `json:"reason"`
	ShedAction      ShedAction `json:"shed_action"`
	ShedTemperature *float64   `json:"shed_temperature,omitempty"`
}

// DevicePlan is the immutable output of one plan cycle.
type DevicePlan struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Meta        PlanMeta        `json:"meta"`
	Devices     []PlannedDevice `json:"devices"`
}

// Device returns the planned entry for id.
func (p *DevicePlan) Device(id string) (PlannedDevice, bool) {
	if p == nil {
		return PlannedDevice{}, false
	}
	for _, d := range p.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return PlannedDevice{}, false
}

// ShedIDs returns the ids of devices planned as shed.
func (p *DevicePlan) ShedIDs() []string {
	if p == nil {
		return nil
	}
	var ids []string
	for _, d := range p.Devices {
		if d.PlannedState == StateShed {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// Clone returns a deep copy so callers can publish the plan without sharing
// slices with the engine.
func (p *DevicePlan) Clone() *DevicePlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Meta.TotalKW = CloneFloat(p.Meta.TotalKW)
	out.Meta.DailySoftLimitKW = CloneFloat(p.Meta.DailySoftLimitKW)
	out.Meta.HeadroomKW = CloneFloat(p.Meta.HeadroomKW)
	out.Devices = make([]PlannedDevice, len(p.Devices))
	for i, d := range p.Devices {
		d.CurrentTarget = CloneFloat(d.CurrentTarget)
		d.PlannedTarget = CloneFloat(d.PlannedTarget)
		d.ShedTemperature = CloneFloat(d.ShedTemperature)
		d.Reason.Devices = append([]string(nil), d.Reason.Devices...)
		out.Devices[i] = d
	}
	return &out
}

// CloneFloat copies the value behind f.
func CloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
