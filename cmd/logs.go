package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loadguard/config"
	planlog "github.com/kilianp07/loadguard/core/plan/logging"
	"github.com/kilianp07/loadguard/pkg/export"
)

var (
	logsSince    time.Duration
	logsDevice   string
	logsShedOnly bool
	logsFormat   string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Export the plan change log",
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().DurationVar(&logsSince, "since", 24*time.Hour, "how far back to export (0 for everything)")
	logsCmd.Flags().StringVar(&logsDevice, "device", "", "only records that changed this device")
	logsCmd.Flags().BoolVar(&logsShedOnly, "shed-only", false, "only records with shed devices")
	logsCmd.Flags().StringVarP(&logsFormat, "output", "o", "csv", "output format: csv or json")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := planlog.Open(cfg.PlanLog)
	if err != nil {
		return fmt.Errorf("open plan log: %w", err)
	}
	if store == nil {
		return fmt.Errorf("plan log is disabled, set plan_log.backend")
	}
	defer store.Close()

	q := planlog.LogQuery{DeviceID: logsDevice, ShedOnly: logsShedOnly}
	if logsSince > 0 {
		q.Start = time.Now().Add(-logsSince)
	}
	recs, err := store.Query(commandContext(cmd), q)
	if err != nil {
		return fmt.Errorf("query plan log: %w", err)
	}
	switch logsFormat {
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), recs)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), recs)
	}
	return fmt.Errorf("unknown output format %q", logsFormat)
}
