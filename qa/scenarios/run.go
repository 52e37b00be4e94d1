package scenarios

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/loadguard/core/capacity"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/plan"
	"github.com/kilianp07/loadguard/infra/store"
)

var start = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

// Result is what a scenario run produced.
type Result struct {
	Shed     []string
	Commands int
}

// hub applies accepted commands to the device list, the way the real
// automation hub reports the new state on the next snapshot.
type hub struct {
	mu       sync.Mutex
	devices  map[string]model.Device
	fail     map[string]bool
	commands int
}

func (h *hub) Devices(context.Context) ([]model.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.Device, 0, len(h.devices))
	for _, d := range h.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *hub) TurnOnOff(_ context.Context, id string, on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands++
	if h.fail[id] {
		return errors.New("device unreachable")
	}
	d := h.devices[id]
	d.CurrentOn = on
	h.devices[id] = d
	return nil
}

func (h *hub) SetCapability(_ context.Context, id, _ string, _ float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands++
	if h.fail[id] {
		return errors.New("device unreachable")
	}
	return nil
}

// Run replays sc and returns the last plan's shed devices and the number of
// commands sent.
func Run(ctx context.Context, sc *Scenario) (Result, error) {
	h := &hub{devices: map[string]model.Device{}, fail: map[string]bool{}}
	for _, d := range sc.Devices {
		h.devices[d.ID] = d.ToModel()
	}
	for _, id := range sc.FailDevices {
		h.fail[id] = true
	}

	now := start
	eng, err := plan.New(plan.Config{}, capacity.Config{LimitKW: sc.LimitKW, MarginKW: sc.MarginKW}, plan.Deps{
		Devices:  h,
		Actuator: h,
		Store:    store.NewMemoryStore(),
		Now:      func() time.Time { return now },
	})
	if err != nil {
		return Result{}, err
	}
	defer eng.Close()

	var last *model.DevicePlan
	for i, st := range sc.Steps {
		now = now.Add(time.Duration(st.AfterSeconds) * time.Second)
		eng.RecordPowerSample(ctx, model.PowerSample{Timestamp: now, TotalPowerW: st.TotalKW * 1000})
		p, err := eng.Rebuild(ctx, "scenario")
		if err != nil {
			return Result{}, fmt.Errorf("step %d: %w", i, err)
		}
		eng.Wait()
		last = p
	}

	res := Result{}
	if last != nil {
		res.Shed = last.ShedIDs()
		sort.Strings(res.Shed)
	}
	h.mu.Lock()
	res.Commands = h.commands
	h.mu.Unlock()
	return res, nil
}
