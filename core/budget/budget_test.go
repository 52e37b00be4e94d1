package budget

import (
	"math"
	"testing"
	"time"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestHourlySoftLimit(t *testing.T) {
	half := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	cases := []struct {
		name   string
		budget float64
		used   float64
		now    time.Time
		want   float64
	}{
		{"spread over half hour", 5, 3, half, 4},
		{"clamped to limit minus margin", 20, 0, half, 9.5},
		{"exhausted", 5, 5, half, 0},
		{"over budget", 5, 6, half, 0},
		{"no energy cap", 0, 3, half, 9.5},
		{"end of hour divisor floor", 5, 4.9, half.Add(29*time.Minute + 50*time.Second), 6},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := HourlySoftLimit(c.budget, c.used, c.now, 10, 0.5); !near(got, c.want) {
				t.Fatalf("expected %v got %v", c.want, got)
			}
		})
	}
	if !HourlyExhausted(5, 5) {
		t.Errorf("expected 5/5 kWh to be exhausted")
	}
	if HourlyExhausted(0, 5) {
		t.Errorf("a zero budget must never be exhausted")
	}
}

func TestDailySoftLimit(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &DailySnapshot{
		Enabled: true,
		Buckets: Buckets{
			PlannedKWh: []float64{2, 3},
			ActualKWh:  []float64{1, 0},
			StartUTC:   []time.Time{start, start.Add(time.Hour)},
		},
	}
	got := DailySoftLimit(s, start.Add(30*time.Minute))
	if got == nil || !near(*got, 2) {
		t.Fatalf("expected 2 got %v", got)
	}

	s.Exceeded = true
	got = DailySoftLimit(s, start.Add(30*time.Minute))
	if got == nil || *got != 0 {
		t.Fatalf("expected 0 once exceeded got %v", got)
	}

	for name, snap := range map[string]*DailySnapshot{
		"nil":          nil,
		"disabled":     {},
		"out of range": {Enabled: true, CurrentBucketIndex: 4},
	} {
		if got := DailySoftLimit(snap, start); got != nil {
			t.Errorf("%s: expected no limit got %v", name, *got)
		}
	}
}

func TestEvenDailyProvider(t *testing.T) {
	usage := func(h time.Time) float64 {
		if h.Hour() < 12 {
			return 1
		}
		return 0.5
	}
	p := NewEvenDailyProvider(24, usage)
	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	s := p.Snapshot(now)
	if !s.Enabled {
		t.Fatal("expected an enabled snapshot")
	}
	if s.CurrentBucketIndex != 12 {
		t.Errorf("expected bucket 12 got %d", s.CurrentBucketIndex)
	}
	if len(s.Buckets.PlannedKWh) != 24 {
		t.Fatalf("expected 24 buckets got %d", len(s.Buckets.PlannedKWh))
	}
	if !near(s.UsedNowKWh, 12.5) || !near(s.AllowedNowKWh, 12.5) || !near(s.RemainingKWh, 11.5) {
		t.Errorf("unexpected totals used=%v allowed=%v remaining=%v", s.UsedNowKWh, s.AllowedNowKWh, s.RemainingKWh)
	}
	if s.Exceeded {
		t.Errorf("expected budget not exceeded")
	}
	if !near(s.Buckets.PlannedKWh[12], 1) || !near(s.Buckets.PlannedKWh[0], 1) {
		t.Errorf("expected 1 kWh per bucket got %v", s.Buckets.PlannedKWh)
	}

	lim := DailySoftLimit(s, now)
	if lim == nil || !near(*lim, 1) {
		t.Fatalf("expected 1 got %v", lim)
	}

	p.SetDailyKWh(0)
	if p.Snapshot(now).Enabled {
		t.Errorf("expected snapshot disabled without a daily budget")
	}
}
