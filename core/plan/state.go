package plan

import (
	"sort"
	"time"
)

// EngineState is the persistent controller state. It is owned by the engine
// and mutated only inside a plan cycle or while recording actuation results.
// Timestamps are epoch milliseconds; zero means never.
type EngineState struct {
	LastDeviceShedMs    map[string]int64 `json:"lastDeviceShedMs"`
	LastDeviceRestoreMs map[string]int64 `json:"lastDeviceRestoreMs"`

	// In-flight actuations keyed by device id.
	PendingShed    map[string]int64 `json:"pendingShed"`
	PendingRestore map[string]int64 `json:"pendingRestore"`

	LastPlannedShedIDs        []string `json:"lastPlannedShedIds"`
	LastShedPlanMeasurementMs int64    `json:"lastShedPlanMeasurementMs"`

	// PendingSwaps maps a swap target to the time the swap was planned.
	PendingSwaps map[string]int64 `json:"pendingSwapTimestamps"`
	// SwappedOutFor maps a swapped-out device to the device it made room for.
	SwappedOutFor map[string]string `json:"swappedOutFor"`
	// RestoreTargets remembers the target a device had before it was parked
	// at its shed temperature.
	RestoreTargets map[string]float64 `json:"restoreTargets"`

	RestoreCooldownMs         int64 `json:"restoreCooldownMs"`
	LastRestoreCooldownBumpMs int64 `json:"lastRestoreCooldownBumpMs"`
	HourlyBudgetExhausted     bool  `json:"hourlyBudgetExhausted"`
	WasOvershoot              bool  `json:"wasOvershoot"`

	LastSheddingMs  int64 `json:"lastSheddingMs"`
	LastOvershootMs int64 `json:"lastOvershootMs"`
	LastRestoreMs   int64 `json:"lastRestoreMs"`
}

// NewEngineState returns an empty state.
func NewEngineState() *EngineState {
	s := &EngineState{}
	s.ensure()
	return s
}

func (s *EngineState) ensure() {
	if s.LastDeviceShedMs == nil {
		s.LastDeviceShedMs = map[string]int64{}
	}
	if s.LastDeviceRestoreMs == nil {
		s.LastDeviceRestoreMs = map[string]int64{}
	}
	if s.PendingShed == nil {
		s.PendingShed = map[string]int64{}
	}
	if s.PendingRestore == nil {
		s.PendingRestore = map[string]int64{}
	}
	if s.PendingSwaps == nil {
		s.PendingSwaps = map[string]int64{}
	}
	if s.SwappedOutFor == nil {
		s.SwappedOutFor = map[string]string{}
	}
	if s.RestoreTargets == nil {
		s.RestoreTargets = map[string]float64{}
	}
}

// Clone returns a deep copy.
func (s *EngineState) Clone() *EngineState {
	out := *s
	out.LastDeviceShedMs = cloneMap(s.LastDeviceShedMs)
	out.LastDeviceRestoreMs = cloneMap(s.LastDeviceRestoreMs)
	out.PendingShed = cloneMap(s.PendingShed)
	out.PendingRestore = cloneMap(s.PendingRestore)
	out.PendingSwaps = cloneMap(s.PendingSwaps)
	out.SwappedOutFor = cloneMap(s.SwappedOutFor)
	out.RestoreTargets = cloneMap(s.RestoreTargets)
	out.LastPlannedShedIDs = append([]string(nil), s.LastPlannedShedIDs...)
	out.ensure()
	return &out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// pendingSwapTargets returns the swap targets in a stable order.
func (s *EngineState) pendingSwapTargets() []string {
	ids := make([]string, 0, len(s.PendingSwaps))
	for id := range s.PendingSwaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func toMs(t time.Time) int64 { return t.UnixMilli() }

// since returns the time elapsed since ms, or a very large duration when ms
// is unset.
func since(now time.Time, ms int64) time.Duration {
	if ms <= 0 {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(time.UnixMilli(ms))
}
