package plan

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/loadguard/core/capacity"
	"github.com/kilianp07/loadguard/core/metrics"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/monitoring"
)

type commandKind string

const (
	commandShed    commandKind = "shed"
	commandRestore commandKind = "restore"
	commandTarget  commandKind = "target"
)

// command is one device change derived from a plan.
type command struct {
	deviceID   string
	kind       commandKind
	turnOn     *bool
	capability string
	value      *float64
	// prevTarget is remembered when a device is parked at its shed
	// temperature so it can be restored later.
	prevTarget *float64
}

func (c command) String() string {
	switch {
	case c.turnOn != nil && c.value != nil:
		return fmt.Sprintf("%s %s: on=%t %s=%.1f", c.kind, c.deviceID, *c.turnOn, c.capability, *c.value)
	case c.turnOn != nil:
		return fmt.Sprintf("%s %s: on=%t", c.kind, c.deviceID, *c.turnOn)
	case c.value != nil:
		return fmt.Sprintf("%s %s: %s=%.1f", c.kind, c.deviceID, c.capability, *c.value)
	}
	return fmt.Sprintf("%s %s", c.kind, c.deviceID)
}

func boolPtr(b bool) *bool { return &b }

func targetChanged(a, b *float64) bool {
	if a == nil || b == nil {
		return b != nil && a == nil
	}
	return math.Abs(*a-*b) >= targetTolerance
}

// planCommands lists the commands needed to move devices from their current
// to their planned state.
func planCommands(p *model.DevicePlan) []command {
	var out []command
	for _, d := range p.Devices {
		if !d.Controllable {
			continue
		}
		switch {
		case d.CurrentState == model.StateKeep && d.PlannedState == model.StateShed:
			if d.ShedAction == model.ShedSetTemperature && d.TargetID != "" && d.ShedTemperature != nil {
				out = append(out, command{
					deviceID: d.ID, kind: commandShed, capability: d.TargetID,
					value: model.CloneFloat(d.ShedTemperature), prevTarget: model.CloneFloat(d.CurrentTarget),
				})
				continue
			}
			out = append(out, command{deviceID: d.ID, kind: commandShed, turnOn: boolPtr(false)})
		case d.CurrentState == model.StateShed && d.PlannedState == model.StateKeep:
			c := command{deviceID: d.ID, kind: commandRestore}
			if !parkedOn(&d) {
				c.turnOn = boolPtr(true)
			}
			if d.TargetID != "" && targetChanged(d.CurrentTarget, d.PlannedTarget) {
				c.capability = d.TargetID
				c.value = model.CloneFloat(d.PlannedTarget)
			}
			if c.turnOn != nil || c.value != nil {
				out = append(out, c)
			}
		case d.CurrentState == model.StateKeep && d.PlannedState == model.StateKeep:
			if d.TargetID != "" && targetChanged(d.CurrentTarget, d.PlannedTarget) {
				out = append(out, command{deviceID: d.ID, kind: commandTarget, capability: d.TargetID, value: model.CloneFloat(d.PlannedTarget)})
			}
		}
	}
	return out
}

// parkedOn reports whether d is switched on and held at its shed temperature,
// so restoring it only needs a target change.
func parkedOn(d *model.PlannedDevice) bool {
	return d.CurrentOn && d.ShedAction == model.ShedSetTemperature && d.ShedTemperature != nil &&
		d.CurrentTarget != nil && !targetChanged(d.CurrentTarget, d.ShedTemperature)
}

// dispatch marks shed and restore commands in flight and executes them in
// the background. Devices that already have a command in flight are skipped.
func (e *Engine) dispatch(ctx context.Context, p *model.DevicePlan) {
	if e.actuator == nil {
		return
	}
	cmds := planCommands(p)
	if len(cmds) == 0 {
		return
	}
	nowMs := toMs(e.now())
	var ready []command
	e.mu.Lock()
	for _, c := range cmds {
		_, shedding := e.state.PendingShed[c.deviceID]
		_, restoring := e.state.PendingRestore[c.deviceID]
		if shedding || restoring {
			e.log.Debugf("skip %s: %v", c, ErrActionInFlight)
			continue
		}
		switch c.kind {
		case commandShed:
			e.state.PendingShed[c.deviceID] = nowMs
		case commandRestore:
			e.state.PendingRestore[c.deviceID] = nowMs
		}
		ready = append(ready, c)
	}
	e.mu.Unlock()
	if len(ready) == 0 {
		return
	}

	e.background.Add(1)
	go func() {
		defer e.background.Done()
		for _, c := range ready {
			e.execute(ctx, c)
		}
		e.saveState(ctx)
	}()
}

// execute runs one command. A failure leaves the device's recorded state
// untouched and never stops the remaining commands.
func (e *Engine) execute(ctx context.Context, c command) {
	actx, cancel := context.WithTimeout(ctx, e.cfg.actuationTimeout())
	defer cancel()
	start := time.Now()
	err := e.run(actx, c)
	latency := time.Since(start)
	nowMs := toMs(e.now())

	e.mu.Lock()
	switch c.kind {
	case commandShed:
		delete(e.state.PendingShed, c.deviceID)
		if err == nil {
			e.state.LastDeviceShedMs[c.deviceID] = nowMs
			if c.prevTarget != nil {
				e.state.RestoreTargets[c.deviceID] = *c.prevTarget
			}
		}
	case commandRestore:
		delete(e.state.PendingRestore, c.deviceID)
		if err == nil {
			e.state.LastDeviceRestoreMs[c.deviceID] = nowMs
			e.state.LastRestoreMs = nowMs
			delete(e.state.RestoreTargets, c.deviceID)
		}
	}
	e.mu.Unlock()

	ev := metrics.ActuationEvent{DeviceID: c.deviceID, Action: string(c.kind), Value: c.value, Success: err == nil, Latency: latency, Time: time.UnixMilli(nowMs)}
	if err != nil {
		ev.Error = err.Error()
		actuationFailure.WithLabelValues(string(c.kind)).Inc()
		e.log.Errorf("actuation failed (%s): %v", c, err)
		monitoring.CaptureException(err, map[string]string{"device": c.deviceID, "action": string(c.kind)})
	} else {
		e.log.Infof("actuated %s", c)
	}
	if rec, ok := e.metrics.(metrics.ActuationRecorder); ok {
		if rerr := rec.RecordActuation(ev); rerr != nil {
			e.log.Errorf("actuation metrics error: %v", rerr)
		}
	}
}

func (e *Engine) run(ctx context.Context, c command) error {
	if c.turnOn != nil {
		if err := e.actuator.TurnOnOff(ctx, c.deviceID, *c.turnOn); err != nil {
			return fmt.Errorf("turn %s on=%t: %w", c.deviceID, *c.turnOn, err)
		}
	}
	if c.value != nil {
		if err := e.actuator.SetCapability(ctx, c.deviceID, c.capability, *c.value); err != nil {
			return fmt.Errorf("set %s %s: %w", c.deviceID, c.capability, err)
		}
	}
	return nil
}

// onShortfall is the capacity guard callback. It runs on the rebuild path
// and must not take e.mu.
func (e *Engine) onShortfall(ev capacity.ShortfallEvent) {
	if ev.Active {
		shortfallActive.Set(1)
		e.log.Warnf("capacity shortfall: %.2f kW over the soft limit with nothing left to shed", ev.DeficitKW)
		monitoring.CaptureMessage("capacity shortfall", map[string]string{"deficit_kw": fmt.Sprintf("%.2f", ev.DeficitKW)})
	} else {
		shortfallActive.Set(0)
		e.log.Infof("capacity shortfall cleared")
	}
	e.shortfallBus.Publish(ev)
	if rec, ok := e.metrics.(metrics.ShortfallRecorder); ok {
		if err := rec.RecordShortfall(metrics.ShortfallEvent{Active: ev.Active, DeficitKW: ev.DeficitKW, LimitKW: ev.LimitKW, Time: ev.Time}); err != nil {
			e.log.Errorf("shortfall metrics error: %v", err)
		}
	}
	if e.notifier == nil {
		return
	}
	text, flow := "Capacity shortfall cleared", "capacity_shortfall_cleared"
	if ev.Active {
		text = fmt.Sprintf("Capacity shortfall: %.2f kW over the limit and no device left to shed", ev.DeficitKW)
		flow = "capacity_shortfall"
	}
	payload := map[string]any{"deficit_kw": ev.DeficitKW, "limit_kw": ev.LimitKW, "time": ev.Time}
	if ev.TotalKW != nil {
		payload["total_kw"] = *ev.TotalKW
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.actuationTimeout())
		defer cancel()
		if err := e.notifier.CreateNotification(ctx, text); err != nil {
			e.log.Errorf("shortfall notification: %v", err)
		}
		if err := e.notifier.TriggerFlow(ctx, flow, payload); err != nil {
			e.log.Errorf("shortfall flow trigger: %v", err)
		}
	}()
}
