// Package export writes plan log records in formats suited for spreadsheets
// and other tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	planlog "github.com/kilianp07/loadguard/core/plan/logging"
)

// WriteJSON writes the records to w as one JSON array.
func WriteJSON(w io.Writer, recs []planlog.LogRecord) error {
	if recs == nil {
		recs = []planlog.LogRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// WriteCSV writes one row per device change. Records without changes get a
// single row with empty device columns.
func WriteCSV(w io.Writer, recs []planlog.LogRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "plan_id", "trigger", "shed_ids", "device_id", "from", "to", "target", "reason"}); err != nil {
		return err
	}
	for _, r := range recs {
		head := []string{r.Timestamp.UTC().Format(time.RFC3339), r.PlanID, r.Trigger, strings.Join(r.ShedIDs, " ")}
		if len(r.Changes) == 0 {
			if err := cw.Write(append(head, "", "", "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, c := range r.Changes {
			target := ""
			if c.Target != nil {
				target = strconv.FormatFloat(*c.Target, 'f', -1, 64)
			}
			row := append(append([]string{}, head...), c.DeviceID, string(c.From), string(c.To), target, c.Reason)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
