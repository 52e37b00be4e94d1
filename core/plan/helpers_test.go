package plan

import (
	"time"

	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/settings"
)

var t0 = time.Date(2025, 1, 6, 12, 10, 0, 0, time.UTC)

func testConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

func dev(id string, prio int, kw float64, on bool) model.Device {
	return model.Device{ID: id, Name: id, Priority: prio, PowerKW: model.Float(kw), CurrentOn: on, Controllable: true}
}

func thermostat(id string, prio int, kw float64, target float64) model.Device {
	d := dev(id, prio, kw, true)
	d.Targets = []model.Target{{ID: "target_temperature", Value: model.Float(target), Unit: "C"}}
	return d
}

func testSettings(shedTemps map[string]float64) *settings.Store {
	b := map[string]settings.ShedBehavior{}
	for id, temp := range shedTemps {
		b[id] = settings.ShedBehavior{Action: model.ShedSetTemperature, Temperature: model.Float(temp)}
	}
	return settings.New(settings.Options{ShedBehaviors: b, Location: time.UTC})
}

func ctxWithHeadroom(h float64, now time.Time) Context {
	return Context{
		Now:           now,
		HeadroomKW:    model.Float(h),
		MeasurementMs: now.UnixMilli(),
		Source:        model.LimitCapacity,
		MarginKW:      0.3,
		LimitKW:       10,
	}
}

// stages runs shedding, projection and restore planning on one cycle and
// returns the finalized devices keyed by id.
func stages(pc Context, devs []model.Device, st *EngineState, s Settings, tm timing, sheddingActive bool) map[string]model.PlannedDevice {
	cfg := testConfig()
	views := buildViews(devs, s, st)
	shed := selectShedding(pc, views, st, cfg)
	decs := projectDevices(pc, views, shed, st, s)
	planRestores(pc, decs, tm, st, sheddingActive, cfg)
	out := map[string]model.PlannedDevice{}
	for _, d := range finalize(decs, nil) {
		out[d.ID] = d
	}
	return out
}
