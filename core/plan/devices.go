package plan

import (
	"github.com/kilianp07/loadguard/core/model"
)

// decision is a planned device together with the working data the restore
// stage needs.
type decision struct {
	model.PlannedDevice
	view    deviceView
	desired *float64
	// candidate marks off or parked controllable devices the restore stage
	// must evaluate.
	candidate bool
	restored  bool
}

// projectDevices turns the device list and the shed set into a first plan,
// independent of restore timing.
func projectDevices(pc Context, views []deviceView, shed shedDecision, st *EngineState, s Settings) []*decision {
	modes := s.ModeTargets()
	out := make([]*decision, 0, len(views))
	for _, v := range views {
		d := &decision{view: v}
		d.ID = v.ID
		d.Name = v.DisplayName()
		d.Priority = v.priority
		d.PowerKW = v.powerKW
		d.Controllable = v.Controllable
		d.CurrentOn = v.CurrentOn
		d.Zone = v.Zone
		d.CurrentTarget = v.currentTarget()
		if v.target != nil {
			d.TargetID = v.target.ID
		}
		d.ShedAction = v.behavior.Action
		d.ShedTemperature = model.CloneFloat(v.behavior.Temperature)
		d.CurrentState = model.StateShed
		if v.on() {
			d.CurrentState = model.StateKeep
		}
		d.desired = desiredTarget(pc, v, modes, st, s)

		switch {
		case !v.Controllable:
			d.PlannedState = d.CurrentState
			d.PlannedTarget = model.CloneFloat(d.CurrentTarget)
			d.Reason = model.Reason{Kind: model.ReasonNotControllable}
		case shed.has(v.ID):
			d.PlannedState = model.StateShed
			d.PlannedTarget = shedTarget(d)
			d.Reason = model.Reason{Kind: model.ReasonShed, Source: pc.Source}
		case d.CurrentState == model.StateShed:
			d.candidate = true
			d.PlannedState = model.StateShed
			d.PlannedTarget = model.CloneFloat(d.CurrentTarget)
			if v.parked {
				d.Reason = model.Reason{Kind: model.ReasonShedHolding, Temp: model.CloneFloat(v.behavior.Temperature)}
			}
		default:
			d.PlannedState = model.StateKeep
			d.PlannedTarget = model.CloneFloat(d.desired)
			if d.PlannedTarget == nil {
				d.PlannedTarget = model.CloneFloat(d.CurrentTarget)
			}
			d.Reason = model.Reason{Kind: model.ReasonKeep}
		}
		out = append(out, d)
	}
	return out
}

// shedTarget is the target a shed device ends up at.
func shedTarget(d *decision) *float64 {
	if d.ShedAction == model.ShedSetTemperature && d.ShedTemperature != nil {
		return model.CloneFloat(d.ShedTemperature)
	}
	return model.CloneFloat(d.CurrentTarget)
}

// desiredTarget is the mode target (or the pre-shed target for parked
// devices) shifted by the price optimisation delta of the current hour.
// Without a fixed base the current target is kept as is.
func desiredTarget(pc Context, v deviceView, modes map[string]float64, st *EngineState, s Settings) *float64 {
	if v.target == nil {
		return nil
	}
	base, ok := modes[v.ID]
	if !ok && v.holding {
		base, ok = st.RestoreTargets[v.ID]
		if !ok {
			return nil
		}
	}
	if !ok {
		return model.CloneFloat(v.target.Value)
	}
	if po := s.PriceOptimization(v.ID); po.Enabled {
		switch {
		case s.IsCheapHour(pc.Now):
			base += po.CheapDelta
		case s.IsExpensiveHour(pc.Now):
			base += po.ExpensiveDelta
		}
	}
	return &base
}
