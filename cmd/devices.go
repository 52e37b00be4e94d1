package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loadguard/config"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/infra/mqtt"
)

var devicesWait time.Duration

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Device related commands",
}

var devicesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List devices published on the broker",
	RunE:  runDevicesLs,
}

func init() {
	devicesLsCmd.Flags().DurationVarP(&devicesWait, "wait", "w", 2*time.Second, "time to collect retained snapshots")
	devicesCmd.AddCommand(devicesLsCmd)
	rootCmd.AddCommand(devicesCmd)
}

func runDevicesLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.MQTT.Enabled() {
		return fmt.Errorf("mqtt.broker is not configured")
	}
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-ls-%d", mqttCfg.ClientID, time.Now().UnixNano())
	mqttCfg.NoStatus = true
	client, err := mqtt.NewPahoClient(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	inv := mqtt.NewInventory(client, cfg.StaticDevices())
	if err := inv.Start(); err != nil {
		return err
	}
	ctx := commandContext(cmd)
	select {
	case <-time.After(devicesWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	devs, err := inv.Devices(ctx)
	if err != nil {
		return err
	}
	return printDevices(cmd.OutOrStdout(), devs)
}

func printDevices(w io.Writer, devs []model.Device) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tON\tCONTROLLABLE\tKW")
	for _, d := range devs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%.2f\n", d.ID, d.Name, d.CurrentOn, d.Controllable, d.EffectivePowerKW())
	}
	return tw.Flush()
}
