package mqtt

import (
	"testing"
	"time"
)

func TestTopics(t *testing.T) {
	var def Topics
	if got := def.Command("heater"); got != "loadguard/devices/heater/set" {
		t.Errorf("unexpected command topic %q", got)
	}
	if got := def.DeviceStates(); got != "loadguard/devices/+/state" {
		t.Errorf("unexpected state filter %q", got)
	}

	custom := Topics{Prefix: "home/lg/"}
	if got := custom.Ack(); got != "home/lg/ack" {
		t.Errorf("unexpected ack topic %q", got)
	}
	if got := custom.Flow("capacity_shortfall"); got != "home/lg/flows/capacity_shortfall" {
		t.Errorf("unexpected flow topic %q", got)
	}
}

func TestDeviceIDFromState(t *testing.T) {
	var tp Topics
	cases := []struct {
		topic string
		id    string
		ok    bool
	}{
		{"loadguard/devices/boiler/state", "boiler", true},
		{"loadguard/devices//state", "", false},
		{"loadguard/devices/a/b/state", "", false},
		{"other/devices/boiler/state", "", false},
		{"loadguard/devices/boiler/set", "", false},
	}
	for _, c := range cases {
		id, ok := tp.DeviceIDFromState(c.topic)
		if ok != c.ok || id != c.id {
			t.Errorf("%s: expected (%q, %t) got (%q, %t)", c.topic, c.id, c.ok, id, ok)
		}
	}
}

func TestAckAccepted(t *testing.T) {
	no := false
	if !(Ack{CommandID: "x"}).Accepted() {
		t.Errorf("an ack without ok must count as accepted")
	}
	if (Ack{CommandID: "x", OK: &no}).Accepted() {
		t.Errorf("ok=false must be rejected")
	}
}

func TestPowerMessageSample(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	s := PowerMessage{TotalPowerW: 2500}.Sample(now)
	if !s.Timestamp.Equal(now) {
		t.Errorf("expected receive time %v got %v", now, s.Timestamp)
	}

	ts := now.Add(-time.Minute)
	s = PowerMessage{TimestampMs: ts.UnixMilli(), TotalPowerW: 10}.Sample(now)
	if !ts.Equal(s.Timestamp) || s.TotalPowerW != 10 {
		t.Errorf("unexpected sample %+v", s)
	}
}
