package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/loadguard/core/model"
	coremqtt "github.com/kilianp07/loadguard/core/mqtt"
	"github.com/kilianp07/loadguard/infra/logger"
)

// Hub simulates a home automation hub: it owns the household devices,
// publishes their snapshots and the metered total, and applies commands.
type Hub struct {
	Topics     coremqtt.Topics
	BaseLoadKW float64
	Interval   time.Duration
	Strategy   AckStrategy

	client  paho.Client
	log     logger.Logger
	mu      sync.Mutex
	devices map[string]model.Device
	ackCh   chan coremqtt.Ack
}

func NewHub(devices []model.Device, baseLoadKW float64) *Hub {
	h := &Hub{
		BaseLoadKW: baseLoadKW,
		Interval:   10 * time.Second,
		Strategy:   AutoAck{},
		log:        logger.New("simulator"),
		devices:    make(map[string]model.Device, len(devices)),
		ackCh:      make(chan coremqtt.Ack, 50),
	}
	for _, d := range devices {
		h.devices[d.ID] = d
	}
	return h
}

// TotalKW is the base load plus every device currently on.
func (h *Hub) TotalKW() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := h.BaseLoadKW
	for _, d := range h.devices {
		if d.CurrentOn {
			total += d.EffectivePowerKW()
		}
	}
	return total
}

// Device returns the current snapshot of id.
func (h *Hub) Device(id string) (model.Device, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[id]
	return d, ok
}

// Apply executes cmd against the simulated household.
func (h *Hub) Apply(cmd coremqtt.Command) (model.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[cmd.DeviceID]
	if !ok {
		return d, fmt.Errorf("unknown device %q", cmd.DeviceID)
	}
	switch cmd.Action {
	case coremqtt.ActionOnOff:
		if cmd.On == nil {
			return d, fmt.Errorf("onoff command without state")
		}
		d.CurrentOn = *cmd.On
	case coremqtt.ActionSetCapability:
		if cmd.Value == nil {
			return d, fmt.Errorf("capability command without value")
		}
		found := false
		d.Targets = append([]model.Target(nil), d.Targets...)
		for i := range d.Targets {
			if d.Targets[i].ID == cmd.CapabilityID {
				d.Targets[i].Value = model.Float(*cmd.Value)
				found = true
			}
		}
		if !found {
			return d, fmt.Errorf("device %s has no capability %q", d.ID, cmd.CapabilityID)
		}
	default:
		return d, coremqtt.ErrUnknownCommand
	}
	h.devices[d.ID] = d
	return d, nil
}

// Run connects to the broker and simulates the household until ctx is done.
func (h *Hub) Run(ctx context.Context, broker string) error {
	cli, err := connect(ctx, broker, "loadguard-hub-sim")
	if err != nil {
		return err
	}
	h.client = cli
	defer cli.Disconnect(250)

	for _, d := range h.snapshot() {
		h.publishState(d)
	}
	for i := 0; i < 5; i++ {
		go h.worker(ctx)
	}
	if token := cli.Subscribe(h.Topics.Command("+"), 1, h.onCommand); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		h.publishPower()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// connect retries with a growing delay until the broker accepts the
// connection or ctx is done.
func connect(ctx context.Context, broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		token := cli.Connect()
		token.Wait()
		if err = token.Error(); err == nil {
			return cli, nil
		}
		if !wait(ctx, time.Duration(attempt)*500*time.Millisecond) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("connect %s: %w", broker, err)
}

func (h *Hub) snapshot() []model.Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.Device, 0, len(h.devices))
	for _, d := range h.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) onCommand(_ paho.Client, msg paho.Message) {
	var cmd coremqtt.Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.log.Warnf("decode command: %v", err)
		return
	}
	ack := coremqtt.Ack{CommandID: cmd.CommandID}
	d, err := h.Apply(cmd)
	if err != nil {
		ok := false
		ack.OK, ack.Error = &ok, err.Error()
		h.log.Warnf("command %s rejected: %v", cmd.CommandID, err)
	} else {
		h.log.Infof("applied %s to %s", cmd.Action, d.ID)
		h.publishState(d)
		h.publishPower()
	}
	select {
	case h.ackCh <- ack:
	default:
		h.log.Warnf("ack queue full, dropping command %s", cmd.CommandID)
	}
}

func (h *Hub) worker(ctx context.Context) {
	for {
		select {
		case ack := <-h.ackCh:
			h.Strategy.Ack(ctx, h.client, h.Topics.Ack(), ack)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) publishState(d model.Device) {
	h.publish(h.Topics.DeviceState(d.ID), true, d)
}

func (h *Hub) publishPower() {
	h.publish(h.Topics.Power(), false, coremqtt.PowerMessage{
		TimestampMs: time.Now().UnixMilli(),
		TotalPowerW: h.TotalKW() * 1000,
	})
}

func (h *Hub) publish(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Errorf("marshal %s: %v", topic, err)
		return
	}
	token := h.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		h.log.Warnf("publish timeout on %s", topic)
		return
	}
	if err := token.Error(); err != nil {
		h.log.Errorf("publish %s: %v", topic, err)
	}
}
