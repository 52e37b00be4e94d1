package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loadguard/config"
	"github.com/kilianp07/loadguard/core/energy"
	"github.com/kilianp07/loadguard/infra/store"
)

var historyDays int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print daily energy usage from the persisted tracker",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyDays, "days", "n", 14, "number of most recent days to print (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	tracker, err := st.LoadTracker(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("load tracker: %w", err)
	}
	if tracker == nil {
		tracker = energy.NewState()
	}
	return printHistory(cmd.OutOrStdout(), tracker, historyDays)
}

func printHistory(w io.Writer, st *energy.State, limit int) error {
	days := energy.DailyUsage(st)
	if limit > 0 && len(days) > limit {
		days = days[len(days)-limit:]
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tKWH")
	for _, d := range days {
		fmt.Fprintf(tw, "%s\t%.2f\n", d.Day, d.KWh)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := energy.Summarize(st)
	if s.Days == 0 {
		_, err := fmt.Fprintln(w, "no usage recorded")
		return err
	}
	_, err := fmt.Fprintf(w, "%d days, total %.2f kWh, mean %.2f kWh, stddev %.2f kWh, max %.2f kWh on %s\n",
		s.Days, s.TotalKWh, s.MeanKWh, s.StdDevKWh, s.MaxKWh, s.MaxDay)
	return err
}
