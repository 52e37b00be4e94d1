//go:build !no_containers

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/loadguard/core/model"
	coremqtt "github.com/kilianp07/loadguard/core/mqtt"
)

func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\nlog_dest stdout\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// simulateHub connects a device-side client that acknowledges commands and
// publishes a retained device snapshot.
func simulateHub(t *testing.T, broker string, topics coremqtt.Topics) paho.Client {
	t.Helper()
	cli := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("hub-sim"))
	var err error
	for i := 0; i < 10; i++ {
		tok := cli.Connect()
		tok.Wait()
		if err = tok.Error(); err == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	if err != nil {
		t.Skipf("mosquitto not ready: %v", err)
	}
	t.Cleanup(func() { cli.Disconnect(100) })

	tok := cli.Subscribe(topics.Command("heater"), 1, func(c paho.Client, m paho.Message) {
		var cmd coremqtt.Command
		if json.Unmarshal(m.Payload(), &cmd) != nil {
			return
		}
		ack, _ := json.Marshal(coremqtt.Ack{CommandID: cmd.CommandID})
		c.Publish(topics.Ack(), 1, false, ack)
	})
	tok.Wait()
	require.NoError(t, tok.Error())

	kw := 2.5
	state, _ := json.Marshal(model.Device{Name: "Heater", CurrentOn: true, Controllable: true, PowerKW: &kw})
	tok = cli.Publish(topics.DeviceState("heater"), 1, true, state)
	tok.Wait()
	require.NoError(t, tok.Error())
	return cli
}

type sampleSink struct {
	mu      sync.Mutex
	samples []model.PowerSample
}

func (s *sampleSink) RecordPowerSample(_ context.Context, sample model.PowerSample) {
	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
}

func (s *sampleSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func TestBrokerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	broker := startMosquitto(ctx, t)
	hub := simulateHub(t, broker, coremqtt.Topics{})

	cli, err := NewPahoClient(Config{
		Broker:       broker,
		ClientID:     "loadguard-test",
		QoS:          map[string]byte{"command": 1, "ack": 1, "state": 1},
		AckTimeoutMS: 5000,
	})
	require.NoError(t, err)
	defer cli.Disconnect()

	inv := NewInventory(cli, nil)
	require.NoError(t, inv.Start())
	sink := &sampleSink{}
	require.NoError(t, NewMeter(cli, sink).Start(ctx))

	require.Eventually(t, func() bool {
		devs, _ := inv.Devices(ctx)
		return len(devs) == 1 && devs[0].ID == "heater"
	}, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, cli.TurnOnOff(ctx, "heater", false))

	tok := hub.Publish(cli.Topics().Power(), 1, false, []byte(`{"total_power_w":4200}`))
	tok.Wait()
	require.NoError(t, tok.Error())
	assert.Eventually(t, func() bool { return sink.count() == 1 }, 10*time.Second, 100*time.Millisecond)
}
