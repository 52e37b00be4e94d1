// Package logging persists the history of emitted plans. Only cycles whose
// planned actions changed are recorded.
package logging

import (
	"context"
	"time"

	"github.com/kilianp07/loadguard/core/model"
)

// DeviceChange is one planned action that differs from the previous plan.
type DeviceChange struct {
	DeviceID string      `json:"device_id"`
	From     model.State `json:"from"`
	To       model.State `json:"to"`
	Target   *float64    `json:"target,omitempty"`
	Reason   string      `json:"reason"`
}

// LogRecord captures one plan change.
type LogRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	PlanID    string         `json:"plan_id"`
	Trigger   string         `json:"trigger"`
	Meta      model.PlanMeta `json:"meta"`
	ShedIDs   []string       `json:"shed_ids"`
	Changes   []DeviceChange `json:"changes"`
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start    time.Time
	End      time.Time
	DeviceID string
	// ShedOnly keeps records produced while at least one device was shed.
	ShedOnly bool
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// matches applies the filters of q that every backend evaluates in memory.
func (q LogQuery) matches(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.ShedOnly && len(r.ShedIDs) == 0 {
		return false
	}
	if q.DeviceID == "" {
		return true
	}
	for _, c := range r.Changes {
		if c.DeviceID == q.DeviceID {
			return true
		}
	}
	for _, id := range r.ShedIDs {
		if id == q.DeviceID {
			return true
		}
	}
	return false
}

// Diff lists the devices whose planned action changed between prev and next.
func Diff(prev, next *model.DevicePlan) []DeviceChange {
	if next == nil {
		return nil
	}
	var out []DeviceChange
	for _, d := range next.Devices {
		old, ok := prev.Device(d.ID)
		if ok && old.PlannedState == d.PlannedState && sameValue(old.PlannedTarget, d.PlannedTarget) {
			continue
		}
		from := d.CurrentState
		if ok {
			from = old.PlannedState
		}
		out = append(out, DeviceChange{
			DeviceID: d.ID,
			From:     from,
			To:       d.PlannedState,
			Target:   model.CloneFloat(d.PlannedTarget),
			Reason:   d.ReasonText,
		})
	}
	return out
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
