package settings

import (
	"reflect"
	"testing"
	"time"

	"github.com/kilianp07/loadguard/core/model"
)

func newStore() *Store {
	return New(Options{
		Priorities: map[string]int{"boiler": 10},
		ShedBehaviors: map[string]ShedBehavior{
			"floor": {Action: model.ShedSetTemperature, Temperature: model.Float(15)},
			"bad":   {Action: model.ShedSetTemperature},
		},
		Modes: map[string]map[string]float64{
			"home": {"floor": 21},
			"away": {"floor": 17},
		},
		ActiveMode:     "home",
		CheapHours:     []int{1, 2, 3},
		ExpensiveHours: []int{3, 17, 18, 25},
		Location:       time.UTC,
	})
}

func TestStoreDefaults(t *testing.T) {
	s := newStore()
	if got := s.Priority("boiler"); got != 10 {
		t.Errorf("expected priority 10 got %d", got)
	}
	if got := s.Priority("unknown"); got != 0 {
		t.Errorf("expected no priority got %d", got)
	}
	for _, id := range []string{"unknown", "bad"} {
		if got := s.ShedBehavior(id).Action; got != model.ShedTurnOff {
			t.Errorf("%s: expected turn_off got %v", id, got)
		}
	}
	b := s.ShedBehavior("floor")
	if b.Action != model.ShedSetTemperature || b.Temperature == nil || *b.Temperature != 15 {
		t.Errorf("unexpected floor behavior %+v", b)
	}
	if got := s.Modes(); !reflect.DeepEqual(got, []string{"away", "home"}) {
		t.Errorf("expected [away home] got %v", got)
	}
	if got := s.ModeTargets(); !reflect.DeepEqual(got, map[string]float64{"floor": 21}) {
		t.Errorf("unexpected mode targets %v", got)
	}
}

func TestStorePriceHours(t *testing.T) {
	s := newStore()
	at := func(h int) time.Time { return time.Date(2025, 1, 1, h, 15, 0, 0, time.UTC) }
	if !s.IsCheapHour(at(2)) {
		t.Errorf("02:00 should be cheap")
	}
	// Cheap wins when an hour is listed twice.
	if s.IsExpensiveHour(at(3)) || !s.IsCheapHour(at(3)) {
		t.Errorf("03:00 should be cheap only")
	}
	if !s.IsExpensiveHour(at(17)) {
		t.Errorf("17:00 should be expensive")
	}
	if s.IsCheapHour(at(12)) {
		t.Errorf("12:00 should not be cheap")
	}
}

func TestStoreChangesPublished(t *testing.T) {
	s := newStore()
	ch := s.Changes()
	defer s.Unsubscribe(ch)

	if err := s.SetActiveMode("away"); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if ev := <-ch; ev.Key != "mode" {
		t.Errorf("expected mode event got %+v", ev)
	}
	if got := s.ModeTargets()["floor"]; got != 17 {
		t.Errorf("expected away target 17 got %v", got)
	}

	if err := s.SetPriority("floor", 5); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if ev := <-ch; ev != (ChangeEvent{Key: "priority", Device: "floor"}) {
		t.Errorf("unexpected event %+v", ev)
	}

	if err := s.SetActiveMode("vacation"); err == nil {
		t.Errorf("expected unknown mode rejected")
	}
	if err := s.SetPriority("floor", -1); err == nil {
		t.Errorf("expected negative priority rejected")
	}
	if err := s.SetShedBehavior("floor", ShedBehavior{Action: model.ShedSetTemperature}); err == nil {
		t.Errorf("expected set_temperature without temperature rejected")
	}
	if err := s.SetShedBehavior("floor", ShedBehavior{Action: "explode"}); err == nil {
		t.Errorf("expected unknown action rejected")
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}
