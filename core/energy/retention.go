package energy

import (
	"time"
)

// PruneResult reports how much history AggregateAndPruneHistory compacted.
type PruneResult struct {
	RetiredBuckets    int
	DroppedDays       int
	DroppedUnreliable int
}

// AggregateAndPruneHistory retires hourly buckets older than the hourly
// retention window into DailyTotals and HourlyPatterns, then drops daily
// totals and unreliable periods past their own windows. Calling it again
// without new samples changes nothing.
func AggregateAndPruneHistory(s *State, now time.Time) PruneResult {
	s.ensure()
	var res PruneResult
	hourlyThreshold := now.Add(-HourlyRetentionDays * 24 * time.Hour)
	dailyThreshold := DayKey(now.Add(-DailyRetentionDays * 24 * time.Hour))

	for key, kwh := range s.Buckets {
		start, err := ParseBucketKey(key)
		if err != nil {
			delete(s.Buckets, key)
			continue
		}
		if !start.Before(hourlyThreshold) {
			continue
		}
		s.DailyTotals[DayKey(start)] += kwh
		pk := PatternKey(start.Weekday(), start.Hour())
		p := s.HourlyPatterns[pk]
		p.Sum += kwh
		p.Count++
		s.HourlyPatterns[pk] = p
		delete(s.Buckets, key)
		res.RetiredBuckets++
	}
	for _, m := range []map[string]float64{s.HourlyBudgets, s.ControlledBuckets, s.UncontrolledBuckets} {
		pruneOlder(m, hourlyThreshold)
	}

	for day := range s.DailyTotals {
		if day < dailyThreshold {
			delete(s.DailyTotals, day)
			res.DroppedDays++
		}
	}

	thresholdMs := hourlyThreshold.UnixMilli()
	kept := s.UnreliablePeriods[:0]
	for _, p := range s.UnreliablePeriods {
		if p.End < thresholdMs {
			res.DroppedUnreliable++
			continue
		}
		kept = append(kept, p)
	}
	s.UnreliablePeriods = kept
	return res
}

func pruneOlder(m map[string]float64, threshold time.Time) {
	for key := range m {
		start, err := ParseBucketKey(key)
		if err != nil || start.Before(threshold) {
			delete(m, key)
		}
	}
}
