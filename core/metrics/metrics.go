package metrics

import (
	"time"

	"github.com/kilianp07/loadguard/core/model"
)

// PlanEvent summarises one emitted plan.
type PlanEvent struct {
	PlanID        string
	Trigger       string
	Meta          model.PlanMeta
	ShedCount     int
	RestoreCount  int
	DeviceCount   int
	DetailChanged bool
	Duration      time.Duration
	Time          time.Time
}

// MetricsSink records plan cycles for observability purposes.
type MetricsSink interface {
	RecordPlan(ev PlanEvent) error
}

// PowerEvent is one metered sample after it was folded into the tracker.
type PowerEvent struct {
	TotalKW      float64
	ControlledKW *float64
	UsedHourKWh  float64
	BudgetKWh    float64
	Reset        bool
	Unreliable   bool
	Time         time.Time
}

// PowerRecorder records metered power.
type PowerRecorder interface {
	RecordPower(ev PowerEvent) error
}

// ActuationEvent is the outcome of one device command.
type ActuationEvent struct {
	DeviceID string
	Action   string
	Value    *float64
	Success  bool
	Error    string
	Latency  time.Duration
	Time     time.Time
}

// ActuationRecorder records device commands.
type ActuationRecorder interface {
	RecordActuation(ev ActuationEvent) error
}

// ShortfallEvent records a shortfall transition.
type ShortfallEvent struct {
	Active    bool
	DeficitKW float64
	LimitKW   float64
	Time      time.Time
}

// ShortfallRecorder records shortfall transitions.
type ShortfallRecorder interface {
	RecordShortfall(ev ShortfallEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordPlan(PlanEvent) error           { return nil }
func (NopSink) RecordPower(PowerEvent) error         { return nil }
func (NopSink) RecordActuation(ActuationEvent) error { return nil }
func (NopSink) RecordShortfall(ShortfallEvent) error { return nil }
