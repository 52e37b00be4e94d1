package mqtt

import (
	"context"
	"fmt"

	coremqtt "github.com/kilianp07/loadguard/core/mqtt"
)

// SetCapability sets a device target, for example a thermostat setpoint.
func (p *PahoClient) SetCapability(ctx context.Context, deviceID, capabilityID string, value float64) error {
	v := value
	return p.actuate(ctx, coremqtt.Command{
		DeviceID:     deviceID,
		Action:       coremqtt.ActionSetCapability,
		CapabilityID: capabilityID,
		Value:        &v,
	})
}

// TurnOnOff switches a device on or off.
func (p *PahoClient) TurnOnOff(ctx context.Context, deviceID string, on bool) error {
	o := on
	return p.actuate(ctx, coremqtt.Command{DeviceID: deviceID, Action: coremqtt.ActionOnOff, On: &o})
}

func (p *PahoClient) actuate(ctx context.Context, cmd coremqtt.Command) error {
	if cmd.DeviceID == "" {
		return fmt.Errorf("mqtt actuate: empty device id")
	}
	if p.dryRun {
		p.logger.Infof("dry run: would send %s to %s", cmd.Action, cmd.DeviceID)
		return nil
	}
	id, err := p.SendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	if p.ackTimeout < 0 {
		p.forget(id)
		return nil
	}
	return p.WaitForAck(ctx, id, p.ackTimeout)
}
