package plan

import (
	"math"

	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/settings"
)

// targetTolerance is how close a target must be to count as "at" a value.
const targetTolerance = 0.05

// deviceView is a device annotated with everything the cycle stages need.
type deviceView struct {
	model.Device
	priority int
	powerKW  float64
	behavior settings.ShedBehavior
	target   *model.Target
	// holding is true when the target already equals the shed temperature.
	holding bool
	// parked is true when holding because the engine shed it.
	parked bool
}

// on reports whether the device currently draws its normal load.
func (v deviceView) on() bool { return v.CurrentOn && !v.parked }

func (v deviceView) currentTarget() *float64 {
	if v.target == nil {
		return nil
	}
	return model.CloneFloat(v.target.Value)
}

func buildViews(devs []model.Device, s Settings, st *EngineState) []deviceView {
	out := make([]deviceView, 0, len(devs))
	for _, d := range devs {
		v := deviceView{Device: d, powerKW: d.EffectivePowerKW()}
		v.priority = d.EffectivePriority()
		if p := s.Priority(d.ID); p > 0 {
			v.priority = p
		}
		v.behavior = s.ShedBehavior(d.ID)
		if t, ok := d.PrimaryTarget(); ok {
			v.target = &t
		}
		if v.behavior.Action == model.ShedSetTemperature && v.behavior.Temperature != nil && v.target != nil {
			v.holding = math.Abs(*v.target.Value-*v.behavior.Temperature) < targetTolerance
		}
		v.parked = v.holding && d.CurrentOn && st.LastDeviceShedMs[d.ID] > st.LastDeviceRestoreMs[d.ID]
		out = append(out, v)
	}
	return out
}

func viewIndex(views []deviceView) map[string]int {
	idx := make(map[string]int, len(views))
	for i, v := range views {
		idx[v.ID] = i
	}
	return idx
}
