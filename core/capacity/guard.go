// Package capacity tracks the measured total power against the configured
// capacity limit and owns the shedding and shortfall flags.
package capacity

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultShortfallEnterDelay is how long the shortfall condition must
	// hold before the guard enters shortfall.
	DefaultShortfallEnterDelay = 30 * time.Second
	// DefaultShortfallExitDelay is how long the condition must stay resolved
	// before the guard leaves shortfall.
	DefaultShortfallExitDelay = 60 * time.Second
	// MinRestoreMarginKW is the smallest hysteresis band used to clear
	// shedding.
	MinRestoreMarginKW = 0.1
)

// ShortfallEvent is published on every shortfall transition.
type ShortfallEvent struct {
	Active    bool
	DeficitKW float64
	TotalKW   *float64
	LimitKW   float64
	Time      time.Time
}

// Config holds the guard parameters.
type Config struct {
	LimitKW    float64
	MarginKW   float64
	EnterDelay time.Duration
	ExitDelay  time.Duration
}

// Guard is safe for concurrent use.
type Guard struct {
	mu sync.Mutex

	limitKW    float64
	marginKW   float64
	enterDelay time.Duration
	exitDelay  time.Duration

	totalKW  *float64
	reported time.Time

	shedding       bool
	shortfall      bool
	conditionSince time.Time
	clearSince     time.Time
	lastDeficitKW  float64

	now      func() time.Time
	onChange func(ShortfallEvent)
}

// NewGuard returns a guard. onChange, if not nil, is invoked outside the
// guard lock on every shortfall transition.
func NewGuard(cfg Config, now func() time.Time, onChange func(ShortfallEvent)) *Guard {
	if now == nil {
		now = time.Now
	}
	if cfg.EnterDelay <= 0 {
		cfg.EnterDelay = DefaultShortfallEnterDelay
	}
	if cfg.ExitDelay <= 0 {
		cfg.ExitDelay = DefaultShortfallExitDelay
	}
	return &Guard{
		limitKW:    cfg.LimitKW,
		marginKW:   math.Max(0, cfg.MarginKW),
		enterDelay: cfg.EnterDelay,
		exitDelay:  cfg.ExitDelay,
		now:        now,
		onChange:   onChange,
	}
}

// SetLimit updates the hard limit and margin.
func (g *Guard) SetLimit(limitKW, marginKW float64) {
	g.mu.Lock()
	g.limitKW = limitKW
	g.marginKW = math.Max(0, marginKW)
	g.mu.Unlock()
}

// ReportTotalPower records the latest measured total power. The last value
// wins.
func (g *Guard) ReportTotalPower(kw float64) {
	g.mu.Lock()
	g.totalKW = &kw
	g.reported = g.now()
	g.mu.Unlock()
}

// TotalPower returns the last reported power and whether one was reported.
func (g *Guard) TotalPower() (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.totalKW == nil {
		return 0, false
	}
	return *g.totalKW, true
}

// LimitKW returns the hard limit.
func (g *Guard) LimitKW() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limitKW
}

// MarginKW returns the configured margin.
func (g *Guard) MarginKW() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.marginKW
}

// SoftLimit returns limit minus margin, never negative.
func (g *Guard) SoftLimit() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return math.Max(0, g.limitKW-g.marginKW)
}

// Headroom returns SoftLimit minus the last reported power.
func (g *Guard) Headroom() (float64, bool) {
	soft := g.SoftLimit()
	total, ok := g.TotalPower()
	if !ok {
		return 0, false
	}
	return soft - total, true
}

// RestoreMargin is the headroom required before shedding is cleared.
func (g *Guard) RestoreMargin() float64 {
	return math.Max(MinRestoreMarginKW, g.MarginKW())
}

// SetSheddingActive sets the shedding flag.
func (g *Guard) SetSheddingActive(active bool) {
	g.mu.Lock()
	g.shedding = active
	g.mu.Unlock()
}

// IsSheddingActive reports the shedding flag.
func (g *Guard) IsSheddingActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shedding
}

// InShortfall reports whether the guard is in shortfall.
func (g *Guard) InShortfall() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shortfall
}

// CheckShortfall evaluates the shortfall condition: no sheddable candidates
// left while a positive deficit remains. Entering and leaving are debounced
// by the configured delays. Callers pass (true, 0) when the binding limit is
// a daily budget, which can never cause a shortfall.
func (g *Guard) CheckShortfall(hasRemainingCandidates bool, deficitKW float64) bool {
	g.mu.Lock()
	now := g.now()
	condition := !hasRemainingCandidates && deficitKW > 0
	var ev *ShortfallEvent
	if condition {
		g.clearSince = time.Time{}
		g.lastDeficitKW = deficitKW
		if !g.shortfall {
			if g.conditionSince.IsZero() {
				g.conditionSince = now
			}
			if now.Sub(g.conditionSince) >= g.enterDelay {
				g.shortfall = true
				ev = g.event(true, deficitKW, now)
			}
		}
	} else {
		g.conditionSince = time.Time{}
		if g.shortfall {
			if g.clearSince.IsZero() {
				g.clearSince = now
			}
			if now.Sub(g.clearSince) >= g.exitDelay {
				g.shortfall = false
				g.clearSince = time.Time{}
				ev = g.event(false, 0, now)
			}
		}
	}
	active := g.shortfall
	cb := g.onChange
	g.mu.Unlock()
	if ev != nil && cb != nil {
		cb(*ev)
	}
	return active
}

func (g *Guard) event(active bool, deficit float64, now time.Time) *ShortfallEvent {
	ev := &ShortfallEvent{Active: active, DeficitKW: deficit, LimitKW: g.limitKW, Time: now}
	if g.totalKW != nil {
		v := *g.totalKW
		ev.TotalKW = &v
	}
	return ev
}
