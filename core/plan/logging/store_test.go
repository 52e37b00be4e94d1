package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/loadguard/core/model"
)

func sampleRecords(now time.Time) []LogRecord {
	return []LogRecord{
		{Timestamp: now.Add(-2 * time.Hour), PlanID: "p1", Changes: []DeviceChange{{DeviceID: "heater", From: model.StateKeep, To: model.StateShed}}, ShedIDs: []string{"heater"}},
		{Timestamp: now.Add(-time.Hour), PlanID: "p2", Changes: []DeviceChange{{DeviceID: "boiler", From: model.StateShed, To: model.StateKeep}}},
		{Timestamp: now, PlanID: "p3", Changes: []DeviceChange{{DeviceID: "heater", From: model.StateShed, To: model.StateKeep}}},
	}
}

func exerciseStore(t *testing.T, store LogStore) {
	t.Helper()
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	for _, r := range sampleRecords(now) {
		if err := store.Append(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	all, err := store.Query(context.Background(), LogQuery{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	heater, _ := store.Query(context.Background(), LogQuery{DeviceID: "heater"})
	if len(heater) != 2 {
		t.Fatalf("expected 2 heater records, got %d", len(heater))
	}
	recent, _ := store.Query(context.Background(), LogQuery{Start: now.Add(-90 * time.Minute)})
	if len(recent) != 2 || recent[0].PlanID != "p2" {
		t.Fatalf("unexpected time filter result: %+v", recent)
	}
	shed, _ := store.Query(context.Background(), LogQuery{ShedOnly: true})
	if len(shed) != 1 || shed[0].PlanID != "p1" {
		t.Fatalf("unexpected shed filter result: %+v", shed)
	}
}

func TestJSONLStore(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "plans.jsonl"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	exerciseStore(t, store)
}

func TestRotatingJSONLStore(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "plans.jsonl"), 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	exerciseStore(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	exerciseStore(t, store)
}

func TestDiff(t *testing.T) {
	prev := &model.DevicePlan{Devices: []model.PlannedDevice{
		{ID: "a", PlannedState: model.StateKeep},
		{ID: "b", PlannedState: model.StateKeep, PlannedTarget: model.Float(21)},
	}}
	next := &model.DevicePlan{Devices: []model.PlannedDevice{
		{ID: "a", PlannedState: model.StateShed, ReasonText: "shed due to capacity"},
		{ID: "b", PlannedState: model.StateKeep, PlannedTarget: model.Float(21)},
		{ID: "c", CurrentState: model.StateKeep, PlannedState: model.StateKeep},
	}}
	changes := Diff(prev, next)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	if changes[0].DeviceID != "a" || changes[0].From != model.StateKeep || changes[0].To != model.StateShed {
		t.Fatalf("unexpected change %+v", changes[0])
	}
	if changes[1].DeviceID != "c" {
		t.Fatalf("expected new device c, got %+v", changes[1])
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{})
	if err != nil || s != nil {
		t.Fatalf("expected disabled store, got %v %v", s, err)
	}
	if _, err := Open(Config{Backend: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if err := (Config{Backend: "sqlite"}).Validate(); err == nil {
		t.Fatalf("expected missing path error")
	}
}
