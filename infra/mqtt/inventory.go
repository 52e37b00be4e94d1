package mqtt

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	corelogger "github.com/kilianp07/loadguard/core/logger"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/infra/logger"
)

// Inventory caches the retained device snapshots published by the hub and
// serves them as the device list of each planning cycle.
type Inventory struct {
	client *PahoClient
	log    corelogger.Logger

	mu       sync.RWMutex
	devices  map[string]model.Device
	onChange func(deviceID string)
}

// NewInventory returns an inventory seeded with static devices. Snapshots
// received from the broker replace seeded entries with the same id.
func NewInventory(client *PahoClient, seed []model.Device) *Inventory {
	inv := &Inventory{client: client, log: logger.New("mqtt_inventory"), devices: make(map[string]model.Device)}
	for _, d := range seed {
		inv.devices[d.ID] = d
	}
	return inv
}

// OnChange registers fn to be called after a device snapshot changed.
func (i *Inventory) OnChange(fn func(deviceID string)) {
	i.mu.Lock()
	i.onChange = fn
	i.mu.Unlock()
}

// Start subscribes to the device state topics.
func (i *Inventory) Start() error {
	return i.client.Subscribe(i.client.Topics().DeviceStates(), "state", func(_ paho.Client, msg paho.Message) {
		i.handle(msg.Topic(), msg.Payload())
	})
}

func (i *Inventory) handle(topic string, payload []byte) {
	id, ok := i.client.Topics().DeviceIDFromState(topic)
	if !ok {
		i.log.Warnf("unexpected state topic %s", topic)
		return
	}
	i.mu.Lock()
	if len(payload) == 0 {
		// Retained message cleared: the device is gone.
		delete(i.devices, id)
	} else {
		var d model.Device
		if err := json.Unmarshal(payload, &d); err != nil {
			i.mu.Unlock()
			i.log.Warnf("invalid state for %s: %v", id, err)
			return
		}
		d.ID = id
		i.devices[id] = d
	}
	fn := i.onChange
	i.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

// Devices returns the cached snapshots ordered by id.
func (i *Inventory) Devices(_ context.Context) ([]model.Device, error) {
	i.mu.RLock()
	out := make([]model.Device, 0, len(i.devices))
	for _, d := range i.devices {
		out = append(out, d)
	}
	i.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}
