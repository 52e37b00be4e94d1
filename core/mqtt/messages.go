// Package mqtt describes the topic layout and payloads exchanged with the
// home-energy hub over MQTT.
package mqtt

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/loadguard/core/model"
)

// DefaultPrefix is the root of every loadguard topic.
const DefaultPrefix = "loadguard"

// Topics builds topic names below a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Command is the topic a device listens on for commands.
func (t Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/set", t.prefix(), deviceID)
}

// DeviceState is the retained topic carrying a device snapshot.
func (t Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/state", t.prefix(), deviceID)
}

// DeviceStates is the wildcard subscription for all device snapshots.
func (t Topics) DeviceStates() string { return t.prefix() + "/devices/+/state" }

// Ack is the topic devices acknowledge commands on.
func (t Topics) Ack() string { return t.prefix() + "/ack" }

// Power is the topic meter samples are published on.
func (t Topics) Power() string { return t.prefix() + "/power" }

// Notification is the topic user-facing notifications are published on.
func (t Topics) Notification() string { return t.prefix() + "/notifications" }

// Flow is the topic an automation flow trigger is published on.
func (t Topics) Flow(name string) string { return fmt.Sprintf("%s/flows/%s", t.prefix(), name) }

// Status is the connection status topic used for the last will.
func (t Topics) Status() string { return t.prefix() + "/status" }

// DeviceIDFromState extracts the device id from a DeviceState topic.
func (t Topics) DeviceIDFromState(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/devices/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/state")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Command actions.
const (
	ActionSetCapability = "set_capability"
	ActionOnOff         = "onoff"
)

// Command is published to a device's command topic.
type Command struct {
	CommandID    string   `json:"command_id"`
	DeviceID     string   `json:"device_id"`
	Action       string   `json:"action"`
	CapabilityID string   `json:"capability_id,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	On           *bool    `json:"on,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

// Ack is published by a device once a command has been applied.
type Ack struct {
	CommandID string `json:"command_id"`
	OK        *bool  `json:"ok,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Accepted reports whether the device applied the command. A missing ok
// field counts as success.
func (a Ack) Accepted() bool { return a.OK == nil || *a.OK }

// PowerMessage is a metered sample published by the hub.
type PowerMessage struct {
	TimestampMs      int64    `json:"timestamp_ms"`
	TotalPowerW      float64  `json:"total_power_w"`
	ControlledPowerW *float64 `json:"controlled_power_w,omitempty"`
}

// Sample converts the message to a model.PowerSample. A zero timestamp
// falls back to now.
func (m PowerMessage) Sample(now time.Time) model.PowerSample {
	ts := now
	if m.TimestampMs > 0 {
		ts = time.UnixMilli(m.TimestampMs).UTC()
	}
	return model.PowerSample{Timestamp: ts, TotalPowerW: m.TotalPowerW, ControlledPowerW: m.ControlledPowerW}
}

// Notification is a user-facing message.
type Notification struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// FlowTrigger fires a named automation flow.
type FlowTrigger struct {
	Flow      string         `json:"flow"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}
