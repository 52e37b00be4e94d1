package plan

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/loadguard/core/plan/logging"
)

// NewLogHandler returns an HTTP handler exposing plan changes via GET
// /api/plan/logs. It accepts start and end (RFC 3339), device_id and
// shed_only filters.
func NewLogHandler(store logging.LogStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := logging.LogQuery{}
		if s := r.URL.Query().Get("start"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid start", http.StatusBadRequest)
				return
			}
			q.Start = t
		}
		if s := r.URL.Query().Get("end"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid end", http.StatusBadRequest)
				return
			}
			q.End = t
		}
		q.DeviceID = r.URL.Query().Get("device_id")
		if s := r.URL.Query().Get("shed_only"); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				http.Error(w, "invalid shed_only", http.StatusBadRequest)
				return
			}
			q.ShedOnly = b
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []logging.LogRecord{}
		}
		writeJSON(w, records)
	})
}
