package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestReasonString(t *testing.T) {
	cases := []struct {
		name string
		r    Reason
		want string
	}{
		{"shed capacity", Reason{Kind: ReasonShed, Source: LimitCapacity}, "shed due to capacity"},
		{"shed daily", Reason{Kind: ReasonShed, Source: LimitDaily}, "shed due to daily budget"},
		{"swapped", Reason{Kind: ReasonSwappedOut, Device: "Boiler"}, "shed (swapped out for Boiler)"},
		{"holding", Reason{Kind: ReasonShedHolding, Temp: Float(15)}, "shed (holding at 15°)"},
		{"insufficient", Reason{Kind: ReasonInsufficientHeadroom, NeedKW: 1.7, HeadroomKW: 0.25}, "insufficient headroom (need 1.70 kW, headroom 0.25 kW)"},
		{"cooldown seconds", Reason{Kind: ReasonCooldown, Cooldown: CooldownRestore, Seconds: 42}, "cooldown (restore, 42s remaining)"},
		{"cooldown note", Reason{Kind: ReasonCooldown, Cooldown: CooldownRestore, Note: "one restore per cycle"}, "cooldown (restore, one restore per cycle)"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.r.String(); got != c.want {
				t.Fatalf("expected %q got %q", c.want, got)
			}
		})
	}
}

func TestReasonKindJSON(t *testing.T) {
	b, err := json.Marshal(Reason{Kind: ReasonSwapPending, Devices: []string{"a"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"kind":"swap_pending"`) {
		t.Fatalf("unexpected json %s", b)
	}

	var r Reason
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Kind != ReasonSwapPending {
		t.Errorf("expected swap_pending got %v", r.Kind)
	}
	if !(Reason{Kind: ReasonSwappedOut}).IsShed() {
		t.Errorf("swapped out must count as shed")
	}
	if r.IsShed() {
		t.Errorf("swap pending must not count as shed")
	}
}

func TestDeviceEffectivePower(t *testing.T) {
	d := Device{PowerKW: Float(2)}
	if got := d.EffectivePowerKW(); got != 2 {
		t.Errorf("expected rated 2 got %v", got)
	}
	d.ExpectedPowerKW = Float(1.5)
	if got := d.EffectivePowerKW(); got != 1.5 {
		t.Errorf("expected 1.5 got %v", got)
	}
	d.MeasuredPowerKW = Float(0.8)
	if got := d.EffectivePowerKW(); got != 0.8 {
		t.Errorf("expected measured 0.8 got %v", got)
	}
	if got := (Device{MeasuredPowerKW: Float(0)}).EffectivePowerKW(); got != DefaultPowerKW {
		t.Errorf("expected default power got %v", got)
	}
	if got := (Device{}).EffectivePriority(); got != DefaultPriority {
		t.Errorf("expected default priority got %v", got)
	}
}

func TestPlanCloneIsDeep(t *testing.T) {
	p := &DevicePlan{Devices: []PlannedDevice{{ID: "a", PlannedTarget: Float(20), PlannedState: StateShed}}}
	c := p.Clone()
	*c.Devices[0].PlannedTarget = 5
	if *p.Devices[0].PlannedTarget != 20 {
		t.Fatalf("clone shares targets with the original")
	}
	if ids := p.ShedIDs(); !reflect.DeepEqual(ids, []string{"a"}) {
		t.Errorf("expected [a] got %v", ids)
	}
}
