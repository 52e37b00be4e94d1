// Package settings holds the runtime-tunable plan settings: priorities, shed
// behaviour, operating modes and the price schedule. Every change is
// published on a bus so the plan engine can rebuild.
package settings

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/internal/eventbus"
)

// ShedBehavior describes how a device is shed.
type ShedBehavior struct {
	Action      model.ShedAction `json:"action" yaml:"action"`
	Temperature *float64         `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// PriceOptimization shifts a device target during cheap or expensive hours.
type PriceOptimization struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	CheapDelta     float64 `json:"cheap_delta" yaml:"cheap_delta"`
	ExpensiveDelta float64 `json:"expensive_delta" yaml:"expensive_delta"`
}

// ChangeEvent is published after every successful mutation.
type ChangeEvent struct {
	Key    string
	Device string
}

// Options seeds a Store.
type Options struct {
	Priorities     map[string]int
	ShedBehaviors  map[string]ShedBehavior
	Modes          map[string]map[string]float64
	ActiveMode     string
	Price          map[string]PriceOptimization
	CheapHours     []int
	ExpensiveHours []int
	Location       *time.Location
}

// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	priorities map[string]int
	shed       map[string]ShedBehavior
	modes      map[string]map[string]float64
	activeMode string
	price      map[string]PriceOptimization
	cheap      map[int]bool
	expensive  map[int]bool
	loc        *time.Location

	bus *eventbus.Bus[ChangeEvent]
}

// New builds a store from opts.
func New(opts Options) *Store {
	s := &Store{
		priorities: map[string]int{},
		shed:       map[string]ShedBehavior{},
		modes:      map[string]map[string]float64{},
		price:      map[string]PriceOptimization{},
		cheap:      hourSet(opts.CheapHours),
		expensive:  hourSet(opts.ExpensiveHours),
		activeMode: opts.ActiveMode,
		loc:        opts.Location,
		bus:        eventbus.New[ChangeEvent](),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	for k, v := range opts.Priorities {
		s.priorities[k] = v
	}
	for k, v := range opts.ShedBehaviors {
		s.shed[k] = v
	}
	for mode, targets := range opts.Modes {
		m := make(map[string]float64, len(targets))
		for id, v := range targets {
			m[id] = v
		}
		s.modes[mode] = m
	}
	for k, v := range opts.Price {
		s.price[k] = v
	}
	return s
}

func hourSet(hours []int) map[int]bool {
	m := make(map[int]bool, len(hours))
	for _, h := range hours {
		if h >= 0 && h < 24 {
			m[h] = true
		}
	}
	return m
}

// Changes subscribes to change events.
func (s *Store) Changes() <-chan ChangeEvent { return s.bus.Subscribe() }

// Unsubscribe releases a subscription returned by Changes.
func (s *Store) Unsubscribe(ch <-chan ChangeEvent) { s.bus.Unsubscribe(ch) }

// Close closes all subscriptions.
func (s *Store) Close() { s.bus.Close() }

// Priority returns the configured priority for id, or 0 when none is set.
func (s *Store) Priority(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.priorities[id]
}

// SetPriority overrides the priority of a device. Lower is more important.
func (s *Store) SetPriority(id string, p int) error {
	if p < 0 {
		return fmt.Errorf("priority for %s must be >= 0, got %d", id, p)
	}
	s.mu.Lock()
	s.priorities[id] = p
	s.mu.Unlock()
	s.bus.Publish(ChangeEvent{Key: "priority", Device: id})
	return nil
}

// ShedBehavior returns how id is shed. Devices default to turn_off.
func (s *Store) ShedBehavior(id string) ShedBehavior {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.shed[id]
	if !ok || b.Action == "" {
		return ShedBehavior{Action: model.ShedTurnOff}
	}
	if b.Action == model.ShedSetTemperature && b.Temperature == nil {
		return ShedBehavior{Action: model.ShedTurnOff}
	}
	return b
}

// SetShedBehavior changes how id is shed.
func (s *Store) SetShedBehavior(id string, b ShedBehavior) error {
	switch b.Action {
	case model.ShedTurnOff:
	case model.ShedSetTemperature:
		if b.Temperature == nil {
			return fmt.Errorf("shed behaviour for %s: set_temperature needs a temperature", id)
		}
	default:
		return fmt.Errorf("shed behaviour for %s: unknown action %q", id, b.Action)
	}
	s.mu.Lock()
	s.shed[id] = b
	s.mu.Unlock()
	s.bus.Publish(ChangeEvent{Key: "shed_behavior", Device: id})
	return nil
}

// ActiveMode returns the active operating mode.
func (s *Store) ActiveMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeMode
}

// Modes lists the configured mode names.
func (s *Store) Modes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.modes))
	for m := range s.modes {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// SetActiveMode switches the operating mode.
func (s *Store) SetActiveMode(mode string) error {
	s.mu.Lock()
	if _, ok := s.modes[mode]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown mode %q", mode)
	}
	s.activeMode = mode
	s.mu.Unlock()
	s.bus.Publish(ChangeEvent{Key: "mode"})
	return nil
}

// ModeTargets returns the desired targets of the active mode keyed by device
// id. The map is a copy.
func (s *Store) ModeTargets() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.modes[s.activeMode]
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// PriceOptimization returns the price settings of id.
func (s *Store) PriceOptimization(id string) PriceOptimization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price[id]
}

// SetPriceOptimization changes the price settings of id.
func (s *Store) SetPriceOptimization(id string, p PriceOptimization) {
	s.mu.Lock()
	s.price[id] = p
	s.mu.Unlock()
	s.bus.Publish(ChangeEvent{Key: "price", Device: id})
}

// SetPriceSchedule replaces the cheap and expensive hours.
func (s *Store) SetPriceSchedule(cheap, expensive []int) {
	s.mu.Lock()
	s.cheap = hourSet(cheap)
	s.expensive = hourSet(expensive)
	s.mu.Unlock()
	s.bus.Publish(ChangeEvent{Key: "price_schedule"})
}

// IsCheapHour reports whether t falls in a cheap hour.
func (s *Store) IsCheapHour(t time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cheap[t.In(s.loc).Hour()]
}

// IsExpensiveHour reports whether t falls in an expensive hour. Cheap wins
// when an hour is listed in both.
func (s *Store) IsExpensiveHour(t time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := t.In(s.loc).Hour()
	return s.expensive[h] && !s.cheap[h]
}
