package mqtt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/kilianp07/loadguard/core/mqtt"
)

// autoAck acknowledges every command published on a device topic.
func autoAck(cli **PahoClient, ok bool) func(string, []byte) {
	return func(topic string, payload []byte) {
		var cmd coremqtt.Command
		if json.Unmarshal(payload, &cmd) != nil || cmd.CommandID == "" {
			return
		}
		ack, _ := json.Marshal(coremqtt.Ack{CommandID: cmd.CommandID, OK: &ok})
		(*cli).onAck(nil, mockMessage{topic: "loadguard/ack", p: ack})
	}
}

func TestSetCapabilityWaitsForAck(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	mc.onPublish = autoAck(&cli, true)

	require.NoError(t, cli.SetCapability(context.Background(), "thermo", "target_temperature", 17))

	sent := mc.publishedTo("loadguard/devices/thermo/set")
	require.Len(t, sent, 1)
	var cmd coremqtt.Command
	require.NoError(t, json.Unmarshal(sent[0].payload, &cmd))
	assert.Equal(t, coremqtt.ActionSetCapability, cmd.Action)
	assert.Equal(t, "target_temperature", cmd.CapabilityID)
	require.NotNil(t, cmd.Value)
	assert.Equal(t, 17.0, *cmd.Value)
	assert.NotEmpty(t, cmd.CommandID)

	cli.mu.Lock()
	assert.Empty(t, cli.ackChans)
	cli.mu.Unlock()
}

func TestTurnOnOffRejected(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	mc.onPublish = autoAck(&cli, false)

	err = cli.TurnOnOff(context.Background(), "boiler", false)
	assert.ErrorIs(t, err, coremqtt.ErrNack)
}

func TestDryRunPublishesNothing(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", DryRun: true})
	require.NoError(t, err)

	require.NoError(t, cli.TurnOnOff(context.Background(), "boiler", false))
	assert.Empty(t, mc.publishedTo("loadguard/devices/boiler/set"))
}

func TestAckWaitingDisabled(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", AckTimeoutMS: -1})
	require.NoError(t, err)

	require.NoError(t, cli.TurnOnOff(context.Background(), "boiler", true))
	assert.Len(t, mc.publishedTo("loadguard/devices/boiler/set"), 1)
	assert.Empty(t, cli.ackChans)
}

func TestActuateRequiresDevice(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	assert.Error(t, cli.TurnOnOff(context.Background(), "", true))
}
