package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/loadguard/core/budget"
	"github.com/kilianp07/loadguard/core/energy"
	"github.com/kilianp07/loadguard/core/metrics"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/monitoring"
	"github.com/kilianp07/loadguard/core/plan/logging"
)

// safeRebuild runs one cycle and keeps panics from escaping the run loop.
func (e *Engine) safeRebuild(ctx context.Context, trigger string) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrRebuildPanic, r)
			e.log.Errorf("%v", err)
			monitoring.CaptureException(err, map[string]string{"trigger": trigger})
			rebuildsTotal.WithLabelValues(trigger, "panic").Inc()
		}
	}()
	if _, err := e.Rebuild(ctx, trigger); err != nil {
		e.log.Errorf("plan rebuild (%s) failed: %v", trigger, err)
	}
}

// Rebuild runs one plan cycle, publishes the resulting plan and dispatches
// the device commands it implies.
func (e *Engine) Rebuild(ctx context.Context, trigger string) (*model.DevicePlan, error) {
	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, e.cfg.inventoryTimeout())
	devs, err := e.devices.Devices(dctx)
	cancel()
	if err != nil {
		rebuildsTotal.WithLabelValues(trigger, "error").Inc()
		return nil, fmt.Errorf("plan: fetch devices: %w", err)
	}
	now := e.now()
	var daily *budget.DailySnapshot
	if e.daily != nil {
		daily = e.daily.Snapshot(now)
	}
	prev := e.plan.Load()

	e.mu.Lock()
	p, cleanup := e.cycle(now, devs, daily, prev)
	e.mu.Unlock()

	for _, id := range cleanup.expired {
		e.log.Infof("pending swap for %s expired", id)
	}
	for _, id := range cleanup.resolved {
		e.log.Debugf("pending swap for %s resolved", id)
	}

	detailChanged := e.publish(ctx, p, prev, trigger, now)
	e.saveState(ctx)

	elapsed := time.Since(start)
	rebuildLatency.WithLabelValues(trigger).Observe(elapsed.Seconds())
	rebuildsTotal.WithLabelValues(trigger, "ok").Inc()
	e.record(p, trigger, detailChanged, elapsed, now)

	e.dispatch(ctx, p)
	return p, nil
}

// cycle computes the next plan. It must be called with e.mu held.
func (e *Engine) cycle(now time.Time, devs []model.Device, daily *budget.DailySnapshot, prev *model.DevicePlan) (*model.DevicePlan, swapCleanup) {
	st := e.state
	views := buildViews(devs, e.settings, st)
	cleanup := clearSwaps(st, views, now, e.cfg)

	var totalKW *float64
	var measurementMs int64
	if e.lastSample != nil {
		v := e.lastSample.TotalPowerW / 1000
		totalKW = &v
		measurementMs = e.lastSample.Timestamp.UnixMilli()
	}
	pc := BuildContext(ContextInput{
		Now:           now,
		Devices:       devs,
		TotalKW:       totalKW,
		MeasurementMs: measurementMs,
		LimitKW:       e.guard.LimitKW(),
		MarginKW:      e.guard.MarginKW(),
		BudgetKWh:     e.cfg.HourlyBudgetKWh,
		UsedKWh:       energy.UsedInHour(e.tracker, now),
		Daily:         daily,
	})
	st.HourlyBudgetExhausted = pc.HourlyBudgetExhausted

	if pc.HeadroomKW != nil && measurementMs != e.lastMeasurementMs {
		noteOvershoot(st, now, *pc.HeadroomKW < 0, e.cfg)
		e.lastMeasurementMs = measurementMs
	}
	shed := selectShedding(pc, views, st, e.cfg)
	updateGuard(e.guard, pc, shed)
	tm := computeTiming(st, now, e.cfg)

	decs := projectDevices(pc, views, shed, st, e.settings)
	planRestores(pc, decs, tm, st, e.guard.IsSheddingActive(), e.cfg)

	meta := pc.Meta()
	meta.SheddingActive = e.guard.IsSheddingActive()
	meta.InShortfall = e.guard.InShortfall()
	meta.RestoreCooldownSeconds = tm.restoreCooldown.Seconds()
	return &model.DevicePlan{
		ID:          uuid.NewString(),
		GeneratedAt: now,
		Meta:        meta,
		Devices:     finalize(decs, prev),
	}, cleanup
}

// publish swaps in the new plan and writes snapshots: immediately when a
// planned action changed, throttled when only reasons or figures drifted.
func (e *Engine) publish(ctx context.Context, p, prev *model.DevicePlan, trigger string, now time.Time) bool {
	detail := detailSignature(p.Devices)
	meta := metaSignature(p.Meta, p.Devices)
	detailChanged := detail != e.lastDetailSig
	metaChanged := meta != e.lastMetaSig
	e.plan.Store(p)
	e.lastDetailSig = detail
	e.lastMetaSig = meta

	write := detailChanged || (metaChanged && now.Sub(e.lastSnapshotWrite) >= e.cfg.snapshotThrottle())
	if write && e.store != nil {
		if err := e.store.SavePlan(ctx, p); err != nil {
			e.log.Errorf("save plan: %v", err)
		} else {
			e.lastSnapshotWrite = now
		}
	}
	if detailChanged && e.planLog != nil {
		rec := logging.LogRecord{
			Timestamp: now,
			PlanID:    p.ID,
			Trigger:   trigger,
			Meta:      p.Meta,
			ShedIDs:   p.ShedIDs(),
			Changes:   logging.Diff(prev, p),
		}
		if err := e.planLog.Append(ctx, rec); err != nil {
			e.log.Errorf("plan log append: %v", err)
		}
	}
	if detailChanged {
		e.log.Infof("plan changed (%s): %d shed, headroom %s kW", trigger, len(p.ShedIDs()), fmtTarget(p.Meta.HeadroomKW))
	}
	e.planBus.Publish(PlanEvent{Plan: p, Trigger: trigger, DetailChanged: detailChanged})
	return detailChanged
}

func (e *Engine) record(p *model.DevicePlan, trigger string, detailChanged bool, elapsed time.Duration, now time.Time) {
	shed := len(p.ShedIDs())
	restores := 0
	for _, d := range p.Devices {
		if d.Reason.Kind == model.ReasonRestore {
			restores++
		}
	}
	shedDevices.Set(float64(shed))
	if p.Meta.HeadroomKW != nil {
		headroomKW.Set(*p.Meta.HeadroomKW)
	}
	restoreCooldown.Set(p.Meta.RestoreCooldownSeconds)
	if err := e.metrics.RecordPlan(metrics.PlanEvent{
		PlanID:        p.ID,
		Trigger:       trigger,
		Meta:          p.Meta,
		ShedCount:     shed,
		RestoreCount:  restores,
		DeviceCount:   len(p.Devices),
		DetailChanged: detailChanged,
		Duration:      elapsed,
		Time:          now,
	}); err != nil {
		e.log.Errorf("plan metrics error: %v", err)
	}
}
