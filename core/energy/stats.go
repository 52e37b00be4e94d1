package energy

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DayUsage is the energy used on one UTC calendar day.
type DayUsage struct {
	Day string  `json:"day"`
	KWh float64 `json:"kwh"`
}

// Summary describes the daily usage history.
type Summary struct {
	Days      int     `json:"days"`
	MeanKWh   float64 `json:"mean_kwh"`
	StdDevKWh float64 `json:"stddev_kwh"`
	MaxKWh    float64 `json:"max_kwh"`
	MaxDay    string  `json:"max_day,omitempty"`
	TotalKWh  float64 `json:"total_kwh"`
}

// DailyUsage merges compacted daily totals with the days still held as
// hourly buckets, sorted by day.
func DailyUsage(s *State) []DayUsage {
	if s == nil {
		return nil
	}
	byDay := make(map[string]float64, len(s.DailyTotals))
	for day, kwh := range s.DailyTotals {
		byDay[day] += kwh
	}
	for key, kwh := range s.Buckets {
		start, err := ParseBucketKey(key)
		if err != nil {
			continue
		}
		byDay[DayKey(start)] += kwh
	}
	out := make([]DayUsage, 0, len(byDay))
	for day, kwh := range byDay {
		out = append(out, DayUsage{Day: day, KWh: kwh})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Summarize computes statistics over DailyUsage.
func Summarize(s *State) Summary {
	days := DailyUsage(s)
	if len(days) == 0 {
		return Summary{}
	}
	values := make([]float64, len(days))
	for i, d := range days {
		values[i] = d.KWh
	}
	sum := Summary{
		Days:     len(values),
		MeanKWh:  stat.Mean(values, nil),
		TotalKWh: floats.Sum(values),
	}
	if len(values) > 1 {
		sum.StdDevKWh = stat.StdDev(values, nil)
	}
	idx := floats.MaxIdx(values)
	sum.MaxKWh = values[idx]
	sum.MaxDay = days[idx].Day
	return sum
}

// PatternAverage returns the average hourly usage learned for the given
// weekday and hour.
func PatternAverage(s *State, day time.Weekday, hour int) (float64, bool) {
	if s == nil {
		return 0, false
	}
	p, ok := s.HourlyPatterns[PatternKey(day, hour)]
	if !ok || p.Count == 0 {
		return 0, false
	}
	return p.Average(), true
}
