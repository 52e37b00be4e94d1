package mqtt

import (
	"context"
	"encoding/json"
	"math"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	corelogger "github.com/kilianp07/loadguard/core/logger"
	"github.com/kilianp07/loadguard/core/model"
	coremqtt "github.com/kilianp07/loadguard/core/mqtt"
	"github.com/kilianp07/loadguard/infra/logger"
)

// SampleRecorder receives metered power samples.
type SampleRecorder interface {
	RecordPowerSample(ctx context.Context, sample model.PowerSample)
}

// Meter feeds power samples published by the hub into a SampleRecorder.
type Meter struct {
	client *PahoClient
	rec    SampleRecorder
	log    corelogger.Logger
	now    func() time.Time
}

// NewMeter returns a meter reading from client's power topic.
func NewMeter(client *PahoClient, rec SampleRecorder) *Meter {
	return &Meter{client: client, rec: rec, log: logger.New("mqtt_meter"), now: time.Now}
}

// Start subscribes to the power topic. Samples are recorded with ctx.
func (m *Meter) Start(ctx context.Context) error {
	return m.client.Subscribe(m.client.Topics().Power(), "power", func(_ paho.Client, msg paho.Message) {
		m.handle(ctx, msg.Payload())
	})
}

func (m *Meter) handle(ctx context.Context, payload []byte) {
	var pm coremqtt.PowerMessage
	if err := json.Unmarshal(payload, &pm); err != nil {
		m.log.Warnf("invalid power payload: %v", err)
		return
	}
	if math.IsNaN(pm.TotalPowerW) || math.IsInf(pm.TotalPowerW, 0) || pm.TotalPowerW < 0 {
		m.log.Warnf("ignoring power sample with total %v W", pm.TotalPowerW)
		return
	}
	if c := pm.ControlledPowerW; c != nil && (math.IsNaN(*c) || *c < 0) {
		pm.ControlledPowerW = nil
	}
	m.rec.RecordPowerSample(ctx, pm.Sample(m.now().UTC()))
}
