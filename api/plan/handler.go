// Package plan exposes the current device plan, metered power, usage history
// and runtime settings over HTTP.
package plan

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/loadguard/core/energy"
	"github.com/kilianp07/loadguard/core/model"
	coreplan "github.com/kilianp07/loadguard/core/plan"
	"github.com/kilianp07/loadguard/core/plan/logging"
)

// Source is the read side of the plan engine.
type Source interface {
	Plan() *model.DevicePlan
	Power() *coreplan.PowerStatus
	Tracker() *energy.State
}

// SettingsWriter changes runtime settings. Every change triggers a rebuild.
type SettingsWriter interface {
	Modes() []string
	ActiveMode() string
	SetActiveMode(mode string) error
	SetPriority(id string, p int) error
}

// Options configures the routes registered by Register.
type Options struct {
	Source   Source
	Settings SettingsWriter
	Logs     logging.LogStore
	// Token, when set, is required as a bearer token on every route.
	Token string
}

// History is the body of GET /api/history.
type History struct {
	Summary     energy.Summary    `json:"summary"`
	Days        []energy.DayUsage `json:"days"`
	HourUsedKWh float64           `json:"hour_used_kwh"`
	PatternKWh  *float64          `json:"pattern_kwh,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Register adds the API routes to mux.
func Register(mux *http.ServeMux, o Options) {
	mux.Handle("/api/plan", guard(o.Token, http.MethodGet, NewPlanHandler(o.Source)))
	mux.Handle("/api/power", guard(o.Token, http.MethodGet, NewPowerHandler(o.Source)))
	mux.Handle("/api/history", guard(o.Token, http.MethodGet, NewHistoryHandler(o.Source, time.Now)))
	if o.Logs != nil {
		mux.Handle("/api/plan/logs", guard(o.Token, http.MethodGet, NewLogHandler(o.Logs)))
	}
	if o.Settings != nil {
		mux.Handle("/api/settings/mode", guard(o.Token, "", NewModeHandler(o.Settings)))
		mux.Handle("/api/settings/priority", guard(o.Token, http.MethodPost, NewPriorityHandler(o.Settings)))
	}
}

// guard enforces the bearer token and, when method is set, the method.
func guard(token, method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if method != "" && r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewPlanHandler serves the latest plan, or 204 before the first cycle.
func NewPlanHandler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p := src.Plan()
		if p == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, p)
	})
}

// NewPowerHandler serves the latest metered power, or 204 before the first
// sample.
func NewPowerHandler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p := src.Power()
		if p == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, p)
	})
}

// NewHistoryHandler serves daily usage, its summary and the learned pattern
// for the current hour.
func NewHistoryHandler(src Source, now func() time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		st := src.Tracker()
		t := now().UTC()
		h := History{
			Summary:     energy.Summarize(st),
			Days:        energy.DailyUsage(st),
			HourUsedKWh: energy.UsedInHour(st, t),
			GeneratedAt: t,
		}
		if h.Days == nil {
			h.Days = []energy.DayUsage{}
		}
		if avg, ok := energy.PatternAverage(st, t.Weekday(), t.Hour()); ok {
			h.PatternKWh = &avg
		}
		writeJSON(w, h)
	})
}
