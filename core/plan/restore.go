package plan

import (
	"math"
	"sort"
	"time"

	"github.com/kilianp07/loadguard/core/model"
)

// swapCleanup lists what clearSwaps removed.
type swapCleanup struct {
	expired  []string
	resolved []string
}

// clearSwaps drops pending swaps whose target came back on or that timed
// out, and swap links that no longer block anything.
func clearSwaps(st *EngineState, views []deviceView, now time.Time, cfg Config) swapCleanup {
	var out swapCleanup
	idx := viewIndex(views)
	isOn := func(id string) (bool, bool) {
		i, ok := idx[id]
		if !ok {
			return false, false
		}
		return views[i].on(), true
	}
	for _, target := range st.pendingSwapTargets() {
		on, known := isOn(target)
		switch {
		case !known || on:
			delete(st.PendingSwaps, target)
			out.resolved = append(out.resolved, target)
		case since(now, st.PendingSwaps[target]) > cfg.swapTimeout():
			delete(st.PendingSwaps, target)
			for dev, t := range st.SwappedOutFor {
				if t == target {
					delete(st.SwappedOutFor, dev)
				}
			}
			out.expired = append(out.expired, target)
		}
	}
	for dev, target := range st.SwappedOutFor {
		devOn, devKnown := isOn(dev)
		tOn, tKnown := isOn(target)
		if !devKnown || devOn || !tKnown || tOn {
			delete(st.SwappedOutFor, dev)
		}
	}
	return out
}

// restoreBlock returns the reason every candidate is held with when restores
// are not allowed this cycle.
func restoreBlock(pc Context, tm timing, sheddingActive bool) (model.Reason, bool) {
	switch {
	case pc.HeadroomKW == nil:
		return model.Reason{Kind: model.ReasonHeadroomUnknown}, true
	case *pc.HeadroomKW < 0:
		return model.Reason{Kind: model.ReasonOverLimit, HeadroomKW: *pc.HeadroomKW}, true
	case sheddingActive:
		return model.Reason{Kind: model.ReasonSheddingActive}, true
	case tm.shedCooldownActive():
		return model.Reason{Kind: model.ReasonCooldown, Cooldown: model.CooldownShedding, Seconds: math.Ceil(tm.shedCooldownLeft.Seconds())}, true
	case tm.restoreCooldownActive():
		return model.Reason{Kind: model.ReasonCooldown, Cooldown: model.CooldownRestore, Seconds: math.Ceil(tm.restoreCooldownLeft.Seconds())}, true
	}
	return model.Reason{}, false
}

// restoreNeed is the headroom a device must find before it is restored.
func restoreNeed(d *decision, st *EngineState, now time.Time, marginKW float64, cfg Config) float64 {
	need := d.PowerKW + math.Max(cfg.MinRestoreHysteresisKW, 2*marginKW)
	if since(now, st.LastDeviceShedMs[d.ID]) < cfg.recentShedWindow() {
		need = math.Max(need*cfg.RecentShedMultiplier, need+cfg.RecentShedExtraKW)
	}
	return need
}

// planRestores restores at most one shed device per cycle, most important
// first, swapping out less important devices when the headroom alone does
// not suffice.
func planRestores(pc Context, decs []*decision, tm timing, st *EngineState, sheddingActive bool, cfg Config) {
	var cands []*decision
	byID := make(map[string]*decision, len(decs))
	for _, d := range decs {
		byID[d.ID] = d
		if d.candidate {
			cands = append(cands, d)
		}
	}
	if len(cands) == 0 {
		return
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Priority != cands[j].Priority {
			return cands[i].Priority < cands[j].Priority
		}
		return cands[i].ID < cands[j].ID
	})

	slotUsed := false
	avail := 0.0
	if pc.HeadroomKW != nil {
		avail = *pc.HeadroomKW
	}
	for _, c := range cands {
		if _, ok := st.PendingRestore[c.ID]; ok {
			markRestored(c)
			c.Reason = model.Reason{Kind: model.ReasonActionPending, Note: "restore"}
			avail -= c.PowerKW
			slotUsed = true
		}
	}

	if reason, blocked := restoreBlock(pc, tm, sheddingActive); blocked {
		for _, c := range cands {
			if !c.restored {
				c.Reason = reason
			}
		}
		return
	}

	isOff := func(id string) (*decision, bool) {
		d, ok := byID[id]
		return d, ok && d.CurrentState == model.StateShed && !d.restored
	}

	for _, c := range cands {
		if c.restored {
			continue
		}
		if slotUsed {
			c.Reason = model.Reason{Kind: model.ReasonCooldown, Cooldown: model.CooldownRestore, Note: "one restore per cycle"}
			continue
		}
		if target, ok := st.SwappedOutFor[c.ID]; ok {
			if t, off := isOff(target); off {
				c.Reason = model.Reason{Kind: model.ReasonBlockedBySwap, Device: t.Name}
				continue
			}
		}
		if t := blockingSwap(c, st, isOff); t != nil {
			c.Reason = model.Reason{Kind: model.ReasonBlockedByPendingSwap, Device: t.Name}
			continue
		}
		if parkedOn(&c.PlannedDevice) && !targetChanged(c.CurrentTarget, c.desired) {
			// Nothing to restore to; keep holding without spending the slot.
			continue
		}

		need := restoreNeed(c, st, pc.Now, pc.MarginKW, cfg)
		if avail >= need {
			markRestored(c)
			c.Reason = model.Reason{Kind: model.ReasonRestore, NeedKW: need, HeadroomKW: avail}
			avail -= need
			slotUsed = true
			continue
		}
		if _, pending := st.PendingSwaps[c.ID]; pending {
			// Waiting for the swapped-out devices to go off.
			c.Reason = model.Reason{Kind: model.ReasonSwapPending, Devices: swappedFor(c.ID, st, byID)}
			continue
		}
		if victims := swapVictims(c, decs, st, avail, need); victims != nil {
			names := make([]string, 0, len(victims))
			for _, v := range victims {
				v.PlannedState = model.StateShed
				v.PlannedTarget = shedTarget(v)
				v.Reason = model.Reason{Kind: model.ReasonSwappedOut, Device: c.Name}
				st.SwappedOutFor[v.ID] = c.ID
				names = append(names, v.Name)
			}
			st.PendingSwaps[c.ID] = toMs(pc.Now)
			st.LastSheddingMs = toMs(pc.Now)
			c.Reason = model.Reason{Kind: model.ReasonSwapPending, Devices: names}
			slotUsed = true
			continue
		}
		c.Reason = model.Reason{Kind: model.ReasonInsufficientHeadroom, NeedKW: need, HeadroomKW: avail}
	}
}

func markRestored(d *decision) {
	d.restored = true
	d.PlannedState = model.StateKeep
	d.PlannedTarget = model.CloneFloat(d.desired)
	if d.PlannedTarget == nil {
		d.PlannedTarget = model.CloneFloat(d.CurrentTarget)
	}
}

// blockingSwap returns a pending swap target at least as important as c
// that is still off.
func blockingSwap(c *decision, st *EngineState, isOff func(string) (*decision, bool)) *decision {
	for _, target := range st.pendingSwapTargets() {
		if target == c.ID {
			continue
		}
		t, off := isOff(target)
		if off && t.Priority <= c.Priority {
			return t
		}
	}
	return nil
}

func swappedFor(target string, st *EngineState, byID map[string]*decision) []string {
	var names []string
	for dev, t := range st.SwappedOutFor {
		if t != target {
			continue
		}
		if d, ok := byID[dev]; ok {
			names = append(names, d.Name)
		} else {
			names = append(names, dev)
		}
	}
	sort.Strings(names)
	return names
}

// swapVictims picks on devices strictly less important than c, least
// important and largest first, until the freed power plus the headroom
// covers need. It returns nil when no combination suffices.
func swapVictims(c *decision, decs []*decision, st *EngineState, avail, need float64) []*decision {
	var pool []*decision
	for _, d := range decs {
		if d.ID == c.ID || !d.Controllable || d.candidate || d.restored {
			continue
		}
		if d.CurrentState != model.StateKeep || d.PlannedState != model.StateKeep {
			continue
		}
		if d.Priority <= c.Priority {
			continue
		}
		if _, swapped := st.SwappedOutFor[d.ID]; swapped {
			continue
		}
		pool = append(pool, d)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Priority != pool[j].Priority {
			return pool[i].Priority > pool[j].Priority
		}
		if pool[i].PowerKW != pool[j].PowerKW {
			return pool[i].PowerKW > pool[j].PowerKW
		}
		return pool[i].ID < pool[j].ID
	})
	freed := 0.0
	for i, d := range pool {
		freed += d.PowerKW
		if avail+freed >= need {
			return pool[:i+1]
		}
	}
	return nil
}
