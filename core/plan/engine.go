package plan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/loadguard/core/budget"
	"github.com/kilianp07/loadguard/core/capacity"
	"github.com/kilianp07/loadguard/core/energy"
	"github.com/kilianp07/loadguard/core/logger"
	"github.com/kilianp07/loadguard/core/metrics"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/plan/logging"
	"github.com/kilianp07/loadguard/core/settings"
	"github.com/kilianp07/loadguard/internal/eventbus"
)

// Deps are the collaborators of an Engine. Only Devices is required.
type Deps struct {
	Devices  DeviceSource
	Settings Settings
	Daily    budget.DailyProvider
	Actuator Actuator
	Store    StateStore
	Notifier Notifier
	Metrics  metrics.MetricsSink
	PlanLog  logging.LogStore
	Logger   logger.Logger
	Now      func() time.Time
}

// PowerStatus is the latest metered power as published to readers.
type PowerStatus struct {
	Timestamp      time.Time `json:"timestamp"`
	TotalKW        float64   `json:"total_kw"`
	ControlledKW   *float64  `json:"controlled_kw,omitempty"`
	UsedHourKWh    float64   `json:"used_hour_kwh"`
	BudgetKWh      float64   `json:"budget_kwh"`
	LimitKW        float64   `json:"limit_kw"`
	SoftLimitKW    float64   `json:"soft_limit_kw"`
	SheddingActive bool      `json:"shedding_active"`
	InShortfall    bool      `json:"in_shortfall"`
}

// PlanEvent is published after every rebuild.
type PlanEvent struct {
	Plan          *model.DevicePlan
	Trigger       string
	DetailChanged bool
}

// changeSource is implemented by settings stores that publish changes.
type changeSource interface {
	Changes() <-chan settings.ChangeEvent
	Unsubscribe(<-chan settings.ChangeEvent)
}

// Engine sequences the plan cycle. Run is the single writer of the plan
// state; RecordPowerSample may be called from any goroutine.
type Engine struct {
	cfg      Config
	guard    *capacity.Guard
	devices  DeviceSource
	settings Settings
	daily    budget.DailyProvider
	actuator Actuator
	store    StateStore
	notifier Notifier
	metrics  metrics.MetricsSink
	planLog  logging.LogStore
	log      logger.Logger
	now      func() time.Time

	// mu guards tracker, state and lastSample.
	mu         sync.Mutex
	tracker    *energy.State
	state      *EngineState
	lastSample *model.PowerSample

	rebuildCh chan string
	plan      atomic.Pointer[model.DevicePlan]
	power     atomic.Pointer[PowerStatus]

	planBus      *eventbus.Bus[PlanEvent]
	shortfallBus *eventbus.Bus[capacity.ShortfallEvent]

	// Touched only by the rebuild path.
	lastMeasurementMs int64
	lastDetailSig     string
	lastMetaSig       string
	lastSnapshotWrite time.Time

	background sync.WaitGroup
	// saveMu orders engine state writes so an older snapshot never lands
	// after a newer one.
	saveMu sync.Mutex
}

// New creates an engine. The capacity guard is built from guardCfg and
// shares the engine clock.
func New(cfg Config, guardCfg capacity.Config, deps Deps) (*Engine, error) {
	if deps.Devices == nil {
		return nil, ErrNoDeviceSource
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:          cfg,
		devices:      deps.Devices,
		settings:     deps.Settings,
		daily:        deps.Daily,
		actuator:     deps.Actuator,
		store:        deps.Store,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		planLog:      deps.PlanLog,
		log:          deps.Logger,
		now:          deps.Now,
		tracker:      energy.NewState(),
		state:        NewEngineState(),
		rebuildCh:    make(chan string, 1),
		planBus:      eventbus.New[PlanEvent](),
		shortfallBus: eventbus.New[capacity.ShortfallEvent](),
	}
	if e.settings == nil {
		e.settings = staticSettings{}
	}
	if e.metrics == nil {
		e.metrics = metrics.NopSink{}
	}
	if e.log == nil {
		e.log = logger.Nop{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.guard = capacity.NewGuard(guardCfg, e.now, e.onShortfall)
	return e, nil
}

// Load restores tracker state, engine state and the last plan from the
// store. Missing entries leave the defaults in place.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	tr, err := e.store.LoadTracker(ctx)
	if err != nil {
		return fmt.Errorf("plan: load tracker state: %w", err)
	}
	st, err := e.store.LoadEngine(ctx)
	if err != nil {
		return fmt.Errorf("plan: load engine state: %w", err)
	}
	p, err := e.store.LoadPlan(ctx)
	if err != nil {
		return fmt.Errorf("plan: load plan: %w", err)
	}
	e.mu.Lock()
	if tr != nil {
		e.tracker = tr.Clone()
	}
	if st != nil {
		e.state = st.Clone()
		// In-flight commands did not survive the restart.
		e.state.PendingShed = map[string]int64{}
		e.state.PendingRestore = map[string]int64{}
	}
	e.mu.Unlock()
	if p != nil {
		e.plan.Store(p)
		e.lastDetailSig = detailSignature(p.Devices)
		e.lastMetaSig = metaSignature(p.Meta, p.Devices)
	}
	e.log.Infof("state restored (plan loaded: %t)", p != nil)
	return nil
}

// Guard returns the capacity guard owned by the engine.
func (e *Engine) Guard() *capacity.Guard { return e.guard }

// Plan returns the latest plan. The value must not be modified.
func (e *Engine) Plan() *model.DevicePlan { return e.plan.Load() }

// Power returns the latest power status.
func (e *Engine) Power() *PowerStatus { return e.power.Load() }

// PlanLog returns the plan change log, or nil when logging is off.
func (e *Engine) PlanLog() logging.LogStore { return e.planLog }

// Tracker returns a copy of the energy tracker state.
func (e *Engine) Tracker() *energy.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Clone()
}

// State returns a copy of the engine state.
func (e *Engine) State() *EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// saveState persists the current engine state. The snapshot is taken under
// saveMu so concurrent writers always store the latest state last.
func (e *Engine) saveState(ctx context.Context) {
	if e.store == nil {
		return
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	if err := e.store.SaveEngine(ctx, e.State()); err != nil {
		e.log.Errorf("save engine state: %v", err)
	}
}

// HourUsage returns the energy recorded in the UTC hour starting at hour. It
// feeds budget.EvenDailyProvider.
func (e *Engine) HourUsage(hour time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return energy.UsedInHour(e.tracker, hour)
}

// SubscribePlans returns a channel receiving every emitted plan.
func (e *Engine) SubscribePlans() <-chan PlanEvent { return e.planBus.Subscribe() }

// SubscribeShortfalls returns a channel receiving shortfall transitions.
func (e *Engine) SubscribeShortfalls() <-chan capacity.ShortfallEvent {
	return e.shortfallBus.Subscribe()
}

// RequestRebuild asks the run loop for a new cycle. Requests made while a
// rebuild is queued are coalesced into it.
func (e *Engine) RequestRebuild(trigger string) {
	select {
	case e.rebuildCh <- trigger:
	default:
	}
}

// RecordPowerSample folds a metered sample into the tracker, reports it to
// the capacity guard, persists the tracker and requests a rebuild.
func (e *Engine) RecordPowerSample(ctx context.Context, sample model.PowerSample) {
	var budgetKWh *float64
	if e.cfg.HourlyBudgetKWh > 0 {
		b := e.cfg.HourlyBudgetKWh
		budgetKWh = &b
	}

	e.mu.Lock()
	res := energy.RecordSample(e.tracker, sample, budgetKWh)
	if res.Ignored {
		e.mu.Unlock()
		e.log.Warnf("ignoring power sample with non-finite value at %s", sample.Timestamp.Format(time.RFC3339))
		return
	}
	s := sample
	e.lastSample = &s
	used := energy.UsedInHour(e.tracker, sample.Timestamp)
	snapshot := e.tracker.Clone()
	e.mu.Unlock()

	if res.Reset {
		e.log.Warnf("power tracker reset at %s: no valid baseline to integrate from", sample.Timestamp.Format(time.RFC3339))
	} else if res.Unreliable {
		e.log.Infof("sampling gap of %s flagged unreliable", res.Gap)
	}

	totalKW := sample.TotalPowerW / 1000
	e.guard.ReportTotalPower(totalKW)
	var controlledKW *float64
	if sample.ControlledPowerW != nil {
		v := *sample.ControlledPowerW / 1000
		controlledKW = &v
	}
	st := &PowerStatus{
		Timestamp:      sample.Timestamp,
		TotalKW:        totalKW,
		ControlledKW:   controlledKW,
		UsedHourKWh:    used,
		BudgetKWh:      e.cfg.HourlyBudgetKWh,
		LimitKW:        e.guard.LimitKW(),
		SoftLimitKW:    e.guard.SoftLimit(),
		SheddingActive: e.guard.IsSheddingActive(),
		InShortfall:    e.guard.InShortfall(),
	}
	if p := e.plan.Load(); p != nil {
		st.SoftLimitKW = p.Meta.SoftLimitKW
	}
	e.power.Store(st)

	if e.store != nil {
		if err := e.store.SaveTracker(ctx, snapshot); err != nil {
			e.log.Errorf("save tracker state: %v", err)
		}
	}
	if rec, ok := e.metrics.(metrics.PowerRecorder); ok {
		if err := rec.RecordPower(metrics.PowerEvent{
			TotalKW: totalKW, ControlledKW: controlledKW, UsedHourKWh: used,
			BudgetKWh: e.cfg.HourlyBudgetKWh, Reset: res.Reset, Unreliable: res.Unreliable,
			Time: sample.Timestamp,
		}); err != nil {
			e.log.Errorf("power metrics error: %v", err)
		}
	}
	e.RequestRebuild("power")
}

// Prune compacts tracker history older than the hourly retention window.
func (e *Engine) Prune(ctx context.Context) {
	e.mu.Lock()
	res := energy.AggregateAndPruneHistory(e.tracker, e.now())
	snapshot := e.tracker.Clone()
	e.mu.Unlock()
	if res.RetiredBuckets == 0 && res.DroppedDays == 0 && res.DroppedUnreliable == 0 {
		return
	}
	e.log.Debugw("tracker history pruned", map[string]any{
		"retired_buckets":    res.RetiredBuckets,
		"dropped_days":       res.DroppedDays,
		"dropped_unreliable": res.DroppedUnreliable,
	})
	if e.store != nil {
		if err := e.store.SaveTracker(ctx, snapshot); err != nil {
			e.log.Errorf("save tracker state: %v", err)
		}
	}
}

// Run processes rebuild requests, settings changes and periodic refreshes
// until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	refresh := time.NewTicker(e.cfg.refreshInterval())
	defer refresh.Stop()
	prune := time.NewTicker(e.cfg.pruneInterval())
	defer prune.Stop()

	var changes <-chan settings.ChangeEvent
	if cs, ok := e.settings.(changeSource); ok {
		changes = cs.Changes()
		defer cs.Unsubscribe(changes)
	}

	e.Prune(ctx)
	e.RequestRebuild("startup")
	for {
		select {
		case <-ctx.Done():
			e.background.Wait()
			return
		case trigger := <-e.rebuildCh:
			e.safeRebuild(ctx, trigger)
		case <-refresh.C:
			e.safeRebuild(ctx, "periodic")
		case <-prune.C:
			e.Prune(ctx)
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			e.safeRebuild(ctx, "settings:"+ev.Key)
		}
	}
}

// Wait blocks until background actuations and notifications finish.
func (e *Engine) Wait() { e.background.Wait() }

// Close releases the buses and the plan log.
func (e *Engine) Close() error {
	e.background.Wait()
	e.planBus.Close()
	e.shortfallBus.Close()
	if e.planLog != nil {
		return e.planLog.Close()
	}
	return nil
}
