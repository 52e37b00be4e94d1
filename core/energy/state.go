package energy

import (
	"fmt"
	"time"
)

const (
	HourlyRetentionDays = 30
	DailyRetentionDays  = 365

	bucketLayout = "2006-01-02T15:04:05.000Z"
	dayLayout    = "2006-01-02"
)

// PatternStat is a running sum used to average usage per weekday and hour.
type PatternStat struct {
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

// Average returns Sum/Count or 0 for an empty stat.
func (p PatternStat) Average() float64 {
	if p.Count == 0 {
		return 0
	}
	return p.Sum / float64(p.Count)
}

// Period is a time range in epoch milliseconds.
type Period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// State is the persisted tracker state. Map keys are canonical strings so the
// state round-trips through JSON unchanged.
type State struct {
	LastTimestampMs        int64    `json:"lastTimestamp,omitempty"`
	LastPowerW             *float64 `json:"lastPowerW,omitempty"`
	LastControlledPowerW   *float64 `json:"lastControlledPowerW,omitempty"`
	LastUncontrolledPowerW *float64 `json:"lastUncontrolledPowerW,omitempty"`

	Buckets             map[string]float64     `json:"buckets"`
	ControlledBuckets   map[string]float64     `json:"controlledBuckets"`
	UncontrolledBuckets map[string]float64     `json:"uncontrolledBuckets"`
	HourlyBudgets       map[string]float64     `json:"hourlyBudgets"`
	DailyTotals         map[string]float64     `json:"dailyTotals"`
	HourlyPatterns      map[string]PatternStat `json:"hourlyPatterns"`
	UnreliablePeriods   []Period               `json:"unreliablePeriods"`
}

// NewState returns an empty state with all maps allocated.
func NewState() *State {
	s := &State{}
	s.ensure()
	return s
}

func (s *State) ensure() {
	if s.Buckets == nil {
		s.Buckets = map[string]float64{}
	}
	if s.ControlledBuckets == nil {
		s.ControlledBuckets = map[string]float64{}
	}
	if s.UncontrolledBuckets == nil {
		s.UncontrolledBuckets = map[string]float64{}
	}
	if s.HourlyBudgets == nil {
		s.HourlyBudgets = map[string]float64{}
	}
	if s.DailyTotals == nil {
		s.DailyTotals = map[string]float64{}
	}
	if s.HourlyPatterns == nil {
		s.HourlyPatterns = map[string]PatternStat{}
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	out := &State{
		LastTimestampMs:        s.LastTimestampMs,
		LastPowerW:             cloneFloat(s.LastPowerW),
		LastControlledPowerW:   cloneFloat(s.LastControlledPowerW),
		LastUncontrolledPowerW: cloneFloat(s.LastUncontrolledPowerW),
		Buckets:                cloneMap(s.Buckets),
		ControlledBuckets:      cloneMap(s.ControlledBuckets),
		UncontrolledBuckets:    cloneMap(s.UncontrolledBuckets),
		HourlyBudgets:          cloneMap(s.HourlyBudgets),
		DailyTotals:            cloneMap(s.DailyTotals),
		HourlyPatterns:         make(map[string]PatternStat, len(s.HourlyPatterns)),
		UnreliablePeriods:      append([]Period(nil), s.UnreliablePeriods...),
	}
	for k, v := range s.HourlyPatterns {
		out.HourlyPatterns[k] = v
	}
	return out
}

// BucketKey returns the ISO-8601 start of the UTC hour containing t.
func BucketKey(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(bucketLayout)
}

// ParseBucketKey parses a key produced by BucketKey.
func ParseBucketKey(key string) (time.Time, error) {
	t, err := time.Parse(bucketLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("bucket key %q: %w", key, err)
	}
	return t, nil
}

// DayKey returns the UTC calendar date of t.
func DayKey(t time.Time) string { return t.UTC().Format(dayLayout) }

// PatternKey returns the weekday/hour key used by HourlyPatterns.
func PatternKey(day time.Weekday, hour int) string {
	return fmt.Sprintf("%d_%d", int(day), hour)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
