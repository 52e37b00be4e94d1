package plan

import (
	"encoding/json"
	"net/http"
)

type modeBody struct {
	Mode  string   `json:"mode"`
	Modes []string `json:"modes,omitempty"`
}

type priorityBody struct {
	DeviceID string `json:"device_id"`
	Priority int    `json:"priority"`
}

// NewModeHandler reports the active mode on GET and switches it on POST.
func NewModeHandler(s SettingsWriter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, modeBody{Mode: s.ActiveMode(), Modes: s.Modes()})
		case http.MethodPost:
			var body modeBody
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Mode == "" {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			if err := s.SetActiveMode(body.Mode); err != nil {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			writeJSON(w, modeBody{Mode: s.ActiveMode()})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// NewPriorityHandler overrides the priority of one device.
func NewPriorityHandler(s SettingsWriter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body priorityBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DeviceID == "" {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := s.SetPriority(body.DeviceID, body.Priority); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
