package plan

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kilianp07/loadguard/core/model"
)

// finalize stabilises the reasons of parked devices against the previous
// plan and renders the reason texts.
func finalize(decs []*decision, prev *model.DevicePlan) []model.PlannedDevice {
	out := make([]model.PlannedDevice, 0, len(decs))
	for _, d := range decs {
		pd := d.PlannedDevice
		if d.view.parked && pd.PlannedState == model.StateShed {
			if old, ok := prev.Device(pd.ID); ok && old.PlannedState == pd.PlannedState && sameTarget(old.PlannedTarget, pd.PlannedTarget) && old.Reason.Kind != model.ReasonNone {
				pd.Reason = old.Reason
			}
		}
		pd.ReasonText = pd.Reason.String()
		out = append(out, pd)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sameTarget(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < 1e-9
}

// detailSignature changes whenever a planned action changes.
func detailSignature(devs []model.PlannedDevice) string {
	var b strings.Builder
	for _, d := range devs {
		fmt.Fprintf(&b, "%s:%s:%s:%s:%s;", d.ID, d.PlannedState, fmtTarget(d.PlannedTarget), d.ShedAction, d.CurrentState)
	}
	return b.String()
}

// metaSignature covers reasons and figures that drift without changing any
// action.
func metaSignature(meta model.PlanMeta, devs []model.PlannedDevice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%.2f|%t|%t|", fmtTarget(meta.TotalKW), fmtTarget(meta.HeadroomKW), meta.SoftLimitKW, meta.SheddingActive, meta.InShortfall)
	for _, d := range devs {
		fmt.Fprintf(&b, "%s:%.2f:%s;", d.ID, d.PowerKW, d.ReasonText)
	}
	return b.String()
}

func fmtTarget(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
