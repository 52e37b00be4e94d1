package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loadguard/core/capacity"
	"github.com/kilianp07/loadguard/core/model"
)

func shedIDs(t *testing.T, pc Context, devs []model.Device, st *EngineState, s Settings) shedDecision {
	t.Helper()
	return selectShedding(pc, buildViews(devs, s, st), st, testConfig())
}

func TestSelectShedding_SkipsDeviceHoldingAtShedTemperature(t *testing.T) {
	devs := []model.Device{
		dev("a", 100, 1.5, true),
		dev("b", 100, 1.0, true),
		thermostat("floor", 100, 2.0, 15),
	}
	st := NewEngineState()
	dec := shedIDs(t, ctxWithHeadroom(-0.4, t0), devs, st, testSettings(map[string]float64{"floor": 15}))
	assert.Equal(t, []string{"a"}, dec.order)
	assert.True(t, dec.fresh)
	assert.Equal(t, 0.0, dec.residualKW)
	assert.Equal(t, []string{"a"}, st.LastPlannedShedIDs)
	assert.Equal(t, t0.UnixMilli(), st.LastShedPlanMeasurementMs)
	assert.Equal(t, t0.UnixMilli(), st.LastSheddingMs)
}

func TestSelectShedding_Order(t *testing.T) {
	cases := []struct {
		name    string
		devs    []model.Device
		deficit float64
		want    []string
	}{
		{
			name:    "least important first and alone when it suffices",
			devs:    []model.Device{dev("important", 10, 3, true), dev("spare", 200, 0.5, true)},
			deficit: 0.4,
			want:    []string{"spare"},
		},
		{
			name:    "higher power first among equal priority",
			devs:    []model.Device{dev("small", 100, 0.8, true), dev("big", 100, 2.0, true)},
			deficit: 0.5,
			want:    []string{"big"},
		},
		{
			name:    "id breaks ties",
			devs:    []model.Device{dev("b", 100, 1, true), dev("a", 100, 1, true)},
			deficit: 0.5,
			want:    []string{"a"},
		},
		{
			name:    "accumulates until covered",
			devs:    []model.Device{dev("x", 100, 1, true), dev("y", 90, 1, true), dev("z", 80, 1, true)},
			deficit: 1.5,
			want:    []string{"x", "y"},
		},
		{
			name: "skips off and uncontrollable devices",
			devs: []model.Device{
				dev("off", 200, 5, false),
				{ID: "fixed", Priority: 200, PowerKW: model.Float(5), CurrentOn: true},
				dev("on", 100, 1, true),
			},
			deficit: 0.5,
			want:    []string{"on"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dec := shedIDs(t, ctxWithHeadroom(-c.deficit, t0), c.devs, NewEngineState(), testSettings(nil))
			assert.Equal(t, c.want, dec.order)
		})
	}
}

func TestSelectShedding_RecentlyRestoredGrace(t *testing.T) {
	devs := []model.Device{dev("recent", 100, 2, true), dev("other", 100, 1, true)}
	st := NewEngineState()
	st.LastDeviceRestoreMs["recent"] = t0.Add(-time.Minute).UnixMilli()

	dec := shedIDs(t, ctxWithHeadroom(-0.8, t0), devs, st, testSettings(nil))
	assert.Equal(t, []string{"other"}, dec.order)

	// Beyond the severity bypass the recent device is eligible, but last.
	st = NewEngineState()
	st.LastDeviceRestoreMs["recent"] = t0.Add(-time.Minute).UnixMilli()
	dec = shedIDs(t, ctxWithHeadroom(-1.2, t0), devs, st, testSettings(nil))
	assert.Equal(t, []string{"other", "recent"}, dec.order)

	// Outside the grace window it sorts by power again.
	st = NewEngineState()
	st.LastDeviceRestoreMs["recent"] = t0.Add(-10 * time.Minute).UnixMilli()
	dec = shedIDs(t, ctxWithHeadroom(-0.8, t0), devs, st, testSettings(nil))
	assert.Equal(t, []string{"recent"}, dec.order)
}

func TestSelectShedding_StaleMeasurementKeepsPreviousSet(t *testing.T) {
	devs := []model.Device{dev("a", 100, 2, true), dev("b", 50, 2, true)}
	st := NewEngineState()
	pc := ctxWithHeadroom(-1, t0)
	first := shedIDs(t, pc, devs, st, testSettings(nil))
	require.Equal(t, []string{"a"}, first.order)

	// Same measurement with a larger deficit: no new decision.
	pc = ctxWithHeadroom(-3, t0.Add(10*time.Second))
	pc.MeasurementMs = t0.UnixMilli()
	again := shedIDs(t, pc, devs, st, testSettings(nil))
	assert.False(t, again.fresh)
	assert.Equal(t, []string{"a"}, again.order)

	// Once a is off it is dropped from the carried set.
	devs[0].CurrentOn = false
	again = shedIDs(t, pc, devs, st, testSettings(nil))
	assert.Empty(t, again.order)
}

func TestSelectShedding_InFlightShedCounts(t *testing.T) {
	devs := []model.Device{dev("a", 100, 2, true), dev("b", 50, 2, true)}
	st := NewEngineState()
	st.PendingShed["b"] = t0.UnixMilli()
	dec := shedIDs(t, ctxWithHeadroom(-1, t0), devs, st, testSettings(nil))
	assert.Equal(t, []string{"b"}, dec.order)
}

func TestSelectShedding_NoDeficit(t *testing.T) {
	st := NewEngineState()
	st.LastPlannedShedIDs = []string{"a"}
	dec := shedIDs(t, ctxWithHeadroom(0.5, t0), []model.Device{dev("a", 100, 1, true)}, st, testSettings(nil))
	assert.Empty(t, dec.order)
	assert.Nil(t, st.LastPlannedShedIDs)

	var unknown Context
	dec = shedIDs(t, unknown, []model.Device{dev("a", 100, 1, true)}, st, testSettings(nil))
	assert.Empty(t, dec.order)
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func TestUpdateGuard_DailyDeficitNeverRaisesShortfall(t *testing.T) {
	clk := &stepClock{t: t0}
	var events []capacity.ShortfallEvent
	g := capacity.NewGuard(capacity.Config{LimitKW: 10, MarginKW: 0.3}, clk.now, func(ev capacity.ShortfallEvent) {
		events = append(events, ev)
	})
	pc := ctxWithHeadroom(-2, t0)
	pc.Source = model.LimitDaily
	dec := shedDecision{ids: map[string]bool{}, deficitKW: 2, residualKW: 2, fresh: true}
	for i := 0; i < 5; i++ {
		updateGuard(g, pc, dec)
		clk.t = clk.t.Add(time.Minute)
	}
	assert.False(t, g.InShortfall())
	assert.Empty(t, events)
	assert.True(t, g.IsSheddingActive())

	pc.Source = model.LimitCapacity
	updateGuard(g, pc, dec)
	clk.t = clk.t.Add(31 * time.Second)
	updateGuard(g, pc, dec)
	assert.True(t, g.InShortfall())
	require.Len(t, events, 1)
}

func TestUpdateGuard_SheddingHysteresis(t *testing.T) {
	g := capacity.NewGuard(capacity.Config{LimitKW: 10, MarginKW: 0.3}, nil, nil)
	empty := shedDecision{ids: map[string]bool{}, fresh: true}

	updateGuard(g, ctxWithHeadroom(-0.1, t0), shedDecision{ids: map[string]bool{"a": true}, deficitKW: 0.1, fresh: true})
	assert.True(t, g.IsSheddingActive())

	// Below the restore margin the flag holds.
	updateGuard(g, ctxWithHeadroom(0.2, t0), empty)
	assert.True(t, g.IsSheddingActive())

	updateGuard(g, ctxWithHeadroom(0.3, t0), empty)
	assert.False(t, g.IsSheddingActive())
}
