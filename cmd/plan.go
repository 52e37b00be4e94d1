package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loadguard/app"
	"github.com/kilianp07/loadguard/config"
	"github.com/kilianp07/loadguard/core/factory"
	"github.com/kilianp07/loadguard/core/model"
)

var (
	fixturePath string
	planOutput  string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute one plan from a device fixture without actuating",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&fixturePath, "devices", "d", "devices.yaml", "device fixture (yaml or json)")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "text", "output format: text or json")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fx, err := loadFixture(fixturePath)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	p, err := dryRunPlan(cmd, cfg, fx, time.Now())
	if err != nil {
		return err
	}
	return printPlan(cmd.OutOrStdout(), p, planOutput)
}

// dryRunPlan runs a single cycle against an in-memory store so that no
// persisted state is touched.
func dryRunPlan(cmd *cobra.Command, cfg *config.Config, fx fixture, now time.Time) (*model.DevicePlan, error) {
	dry := *cfg
	dry.Store = factory.ModuleConfig{Type: "memory"}
	dry.MQTT.Broker = ""
	dry.PlanLog.Backend = ""
	dry.Metrics.Sinks = nil
	dry.Sentry.DSN = ""

	ctx := commandContext(cmd)
	svc, err := app.New(ctx, &dry, app.Options{
		Devices:  app.StaticDevices(fx.Devices),
		Actuator: app.LogActuator{},
		Now:      func() time.Time { return now },
	})
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	sample := model.PowerSample{Timestamp: now, TotalPowerW: fx.TotalKW * 1000}
	if fx.ControlledKW != nil {
		w := *fx.ControlledKW * 1000
		sample.ControlledPowerW = &w
	}
	svc.Engine.RecordPowerSample(ctx, sample)
	return svc.Engine.Rebuild(ctx, "cli")
}

func printPlan(w io.Writer, p *model.DevicePlan, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "text":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	m := p.Meta
	fmt.Fprintf(w, "soft limit %.2f kW (%s)", m.SoftLimitKW, m.SoftLimitSource)
	if m.HeadroomKW != nil {
		fmt.Fprintf(w, ", headroom %.2f kW", *m.HeadroomKW)
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tPRIO\tKW\tCURRENT\tPLANNED\tREASON")
	for _, d := range p.Devices {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%s\t%s\n", d.ID, d.Priority, d.PowerKW, d.CurrentState, d.PlannedState, d.ReasonText)
	}
	return tw.Flush()
}
