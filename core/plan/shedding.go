package plan

import (
	"sort"

	"github.com/kilianp07/loadguard/core/capacity"
)

// shedDecision is the outcome of the shedding selector.
type shedDecision struct {
	ids   map[string]bool
	order []string
	// deficit is the power that had to be freed; residual what is left after
	// every selected device is shed.
	deficitKW  float64
	residualKW float64
	fresh      bool
}

func (d shedDecision) has(id string) bool { return d.ids[id] }

type shedCandidate struct {
	view             deviceView
	recentlyRestored bool
}

// selectShedding greedily picks the least important on devices until their
// combined power covers the deficit. A measurement that was already used to
// plan a shed only carries the previous selection forward.
func selectShedding(pc Context, views []deviceView, st *EngineState, cfg Config) shedDecision {
	dec := shedDecision{ids: map[string]bool{}}
	if pc.HeadroomKW == nil || *pc.HeadroomKW >= 0 {
		st.LastPlannedShedIDs = nil
		return dec
	}
	dec.deficitKW = -*pc.HeadroomKW

	if st.LastShedPlanMeasurementMs != 0 && pc.MeasurementMs == st.LastShedPlanMeasurementMs {
		idx := viewIndex(views)
		for _, id := range st.LastPlannedShedIDs {
			i, ok := idx[id]
			if !ok || !views[i].Controllable || !views[i].on() {
				continue
			}
			dec.ids[id] = true
			dec.order = append(dec.order, id)
		}
		st.LastPlannedShedIDs = append([]string(nil), dec.order...)
		return dec
	}
	dec.fresh = true

	freed := 0.0
	var cands []shedCandidate
	for _, v := range views {
		if !v.Controllable || !v.on() {
			continue
		}
		if _, inFlight := st.PendingShed[v.ID]; inFlight {
			dec.ids[v.ID] = true
			dec.order = append(dec.order, v.ID)
			freed += v.powerKW
			continue
		}
		if v.holding {
			continue
		}
		recent := since(pc.Now, st.LastDeviceRestoreMs[v.ID]) < cfg.restoreGrace()
		if recent && dec.deficitKW <= cfg.SeverityBypassKW {
			continue
		}
		cands = append(cands, shedCandidate{view: v, recentlyRestored: recent})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.view.priority != b.view.priority {
			return a.view.priority > b.view.priority
		}
		if a.recentlyRestored != b.recentlyRestored {
			return !a.recentlyRestored
		}
		if a.view.powerKW != b.view.powerKW {
			return a.view.powerKW > b.view.powerKW
		}
		return a.view.ID < b.view.ID
	})
	for _, c := range cands {
		if freed >= dec.deficitKW {
			break
		}
		dec.ids[c.view.ID] = true
		dec.order = append(dec.order, c.view.ID)
		freed += c.view.powerKW
	}
	if freed < dec.deficitKW {
		dec.residualKW = dec.deficitKW - freed
	}

	st.LastShedPlanMeasurementMs = pc.MeasurementMs
	st.LastPlannedShedIDs = append([]string(nil), dec.order...)
	if len(dec.order) > 0 {
		st.LastSheddingMs = toMs(pc.Now)
	}
	return dec
}

// updateGuard propagates the shedding decision into the capacity guard.
// Shedding is raised on any deficit or shed device and cleared only once the
// headroom clears the restore margin. Only capacity-bound deficits may
// escalate to shortfall.
func updateGuard(g *capacity.Guard, pc Context, dec shedDecision) {
	if g == nil {
		return
	}
	switch {
	case len(dec.ids) > 0 || (pc.HeadroomKW != nil && *pc.HeadroomKW < 0):
		g.SetSheddingActive(true)
	case pc.HeadroomKW != nil && *pc.HeadroomKW >= g.RestoreMargin():
		g.SetSheddingActive(false)
	}

	if pc.HeadroomKW != nil && *pc.HeadroomKW < 0 && !dec.fresh {
		// Same measurement as the previous decision: nothing new to learn.
		return
	}
	if !pc.Source.AllowsShortfall() || dec.residualKW <= 0 {
		g.CheckShortfall(true, 0)
		return
	}
	g.CheckShortfall(false, dec.residualKW)
}
