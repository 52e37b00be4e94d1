package capacity

import (
	"math"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(events *[]ShortfallEvent) (*Guard, *clock) {
	c := &clock{t: time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)}
	g := NewGuard(Config{LimitKW: 10, MarginKW: 0.3}, c.now, func(ev ShortfallEvent) {
		*events = append(*events, ev)
	})
	return g, c
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestGuard_LimitsAndHeadroom(t *testing.T) {
	var evs []ShortfallEvent
	g, _ := newTestGuard(&evs)
	if !near(g.SoftLimit(), 9.7) {
		t.Fatalf("expected soft limit 9.7 got %v", g.SoftLimit())
	}
	if _, ok := g.Headroom(); ok {
		t.Fatal("expected unknown headroom before any sample")
	}

	g.ReportTotalPower(8)
	g.ReportTotalPower(9)
	h, ok := g.Headroom()
	if !ok || !near(h, 0.7) {
		t.Fatalf("expected headroom 0.7 got %v (%t)", h, ok)
	}
	if !near(g.RestoreMargin(), 0.3) {
		t.Errorf("expected restore margin 0.3 got %v", g.RestoreMargin())
	}

	g.SetLimit(0.05, 0.2)
	if g.SoftLimit() != 0 {
		t.Errorf("expected soft limit clamped to 0 got %v", g.SoftLimit())
	}
	if g.RestoreMargin() != MinRestoreMarginKW {
		t.Errorf("expected minimum restore margin got %v", g.RestoreMargin())
	}
}

func TestGuard_ShortfallDebounce(t *testing.T) {
	var evs []ShortfallEvent
	g, c := newTestGuard(&evs)
	g.ReportTotalPower(12)

	steps := []struct {
		advance time.Duration
		within  bool
		deficit float64
		want    bool
	}{
		{0, false, 2, false},
		{20 * time.Second, false, 2, false},
		{10 * time.Second, false, 2, true},
		// a brief recovery does not clear
		{10 * time.Second, true, 0, true},
		{30 * time.Second, false, 1, true},
		{10 * time.Second, true, 0, true},
		{59 * time.Second, true, 0, true},
		{time.Second, true, 0, false},
	}
	for i, s := range steps {
		c.advance(s.advance)
		if got := g.CheckShortfall(s.within, s.deficit); got != s.want {
			t.Fatalf("step %d: expected shortfall %t got %t", i, s.want, got)
		}
		if i == 2 {
			if len(evs) != 1 || !evs[0].Active {
				t.Fatalf("expected one active event got %+v", evs)
			}
			if evs[0].DeficitKW != 2 || evs[0].TotalKW == nil || *evs[0].TotalKW != 12 {
				t.Errorf("unexpected event %+v", evs[0])
			}
		}
	}
	if len(evs) != 2 || evs[1].Active {
		t.Fatalf("expected a clearing event got %+v", evs)
	}
}

func TestGuard_TransientDipDoesNotEnter(t *testing.T) {
	var evs []ShortfallEvent
	g, c := newTestGuard(&evs)
	g.CheckShortfall(false, 1)
	c.advance(25 * time.Second)
	g.CheckShortfall(true, 0)
	c.advance(10 * time.Second)
	if g.CheckShortfall(false, 1) {
		t.Fatal("a dip below the debounce must not enter shortfall")
	}
	if len(evs) != 0 || g.InShortfall() {
		t.Errorf("expected no shortfall got %+v", evs)
	}
}

func TestGuard_DailyOnlyNeverEnters(t *testing.T) {
	var evs []ShortfallEvent
	g, c := newTestGuard(&evs)
	for i := 0; i < 10; i++ {
		g.CheckShortfall(true, 0)
		c.advance(time.Minute)
	}
	if g.InShortfall() || len(evs) != 0 {
		t.Errorf("expected no shortfall got %+v", evs)
	}
}

func TestGuard_SheddingFlag(t *testing.T) {
	var evs []ShortfallEvent
	g, _ := newTestGuard(&evs)
	if g.IsSheddingActive() {
		t.Fatal("expected shedding inactive")
	}
	g.SetSheddingActive(true)
	if !g.IsSheddingActive() {
		t.Fatal("expected shedding active")
	}
}
