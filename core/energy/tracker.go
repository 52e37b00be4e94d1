package energy

import (
	"math"
	"time"

	"github.com/kilianp07/loadguard/core/model"
)

const (
	// MaxSampleGap is the longest interval integrated between two samples.
	MaxSampleGap = 48 * time.Hour
	// MinValidTimestampMs rejects baselines from unset clocks (early 1973).
	MinValidTimestampMs int64 = 100_000_000_000

	unreliableGap      = time.Hour
	unreliableCrossGap = time.Minute
	hourMs             = int64(time.Hour / time.Millisecond)
)

// SampleResult describes what RecordSample did with a sample.
type SampleResult struct {
	// Ignored is set when the sample carried a non-finite power value.
	Ignored bool
	// Reset is set when the sample became a new baseline without
	// integration.
	Reset bool
	// Unreliable is set when the interval was flagged as a sampling gap.
	Unreliable bool
	Gap        time.Duration
	EnergyKWh  float64
}

// RecordSample folds sample into s. budgetKWh, when not nil, is recorded as
// the hourly budget in force for the sample's bucket.
func RecordSample(s *State, sample model.PowerSample, budgetKWh *float64) SampleResult {
	s.ensure()
	total := sample.TotalPowerW
	if !finite(total) {
		return SampleResult{Ignored: true}
	}
	var controlled, uncontrolled *float64
	if c := sample.ControlledPowerW; c != nil && finite(*c) {
		cv := *c
		uv := math.Max(0, total-cv)
		controlled, uncontrolled = &cv, &uv
	}

	nowMs := sample.Timestamp.UnixMilli()
	prevMs := s.LastTimestampMs
	gapMs := nowMs - prevMs

	var res SampleResult
	if s.LastPowerW == nil || prevMs < MinValidTimestampMs || gapMs < 0 || gapMs > MaxSampleGap.Milliseconds() {
		res.Reset = true
	} else {
		res.Gap = time.Duration(gapMs) * time.Millisecond
		res.EnergyKWh = integrate(s.Buckets, prevMs, nowMs, *s.LastPowerW)
		if s.LastControlledPowerW != nil && controlled != nil {
			integrate(s.ControlledBuckets, prevMs, nowMs, *s.LastControlledPowerW)
		}
		if s.LastUncontrolledPowerW != nil && uncontrolled != nil {
			integrate(s.UncontrolledBuckets, prevMs, nowMs, *s.LastUncontrolledPowerW)
		}
		if res.Gap > unreliableGap || (res.Gap > unreliableCrossGap && prevMs/hourMs != nowMs/hourMs) {
			s.UnreliablePeriods = append(s.UnreliablePeriods, Period{Start: prevMs, End: nowMs})
			res.Unreliable = true
		}
	}

	s.LastTimestampMs = nowMs
	s.LastPowerW = &total
	s.LastControlledPowerW = controlled
	s.LastUncontrolledPowerW = uncontrolled
	if budgetKWh != nil {
		s.HourlyBudgets[BucketKey(sample.Timestamp)] = *budgetKWh
	}
	return res
}

// integrate adds powerW held over [startMs, endMs) to the hourly buckets and
// returns the energy added in kWh. Negative power contributes nothing.
func integrate(buckets map[string]float64, startMs, endMs int64, powerW float64) float64 {
	if powerW <= 0 || endMs <= startMs {
		return 0
	}
	kw := powerW / 1000
	var total float64
	for cur := startMs; cur < endMs; {
		hourStart := cur - cur%hourMs
		segEnd := hourStart + hourMs
		if segEnd > endMs {
			segEnd = endMs
		}
		kwh := kw * float64(segEnd-cur) / float64(hourMs)
		buckets[BucketKey(time.UnixMilli(hourStart))] += kwh
		total += kwh
		cur = segEnd
	}
	return total
}

// UsedInHour returns the energy accumulated in the bucket containing t.
func UsedInHour(s *State, t time.Time) float64 {
	if s == nil {
		return 0
	}
	return s.Buckets[BucketKey(t)]
}

// LastSampleTime returns the timestamp of the current baseline.
func LastSampleTime(s *State) (time.Time, bool) {
	if s == nil || s.LastPowerW == nil || s.LastTimestampMs < MinValidTimestampMs {
		return time.Time{}, false
	}
	return time.UnixMilli(s.LastTimestampMs), true
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
