package budget

import (
	"math"
	"time"
)

// Buckets holds the planned and actual energy of each daily budget bucket.
// The three slices are parallel.
type Buckets struct {
	PlannedKWh []float64   `json:"planned_kwh"`
	ActualKWh  []float64   `json:"actual_kwh"`
	StartUTC   []time.Time `json:"start_utc"`
}

// DailySnapshot is the daily budget view consumed once per plan cycle.
type DailySnapshot struct {
	Enabled            bool    `json:"enabled"`
	UsedNowKWh         float64 `json:"used_now_kwh"`
	AllowedNowKWh      float64 `json:"allowed_now_kwh"`
	RemainingKWh       float64 `json:"remaining_kwh"`
	Exceeded           bool    `json:"exceeded"`
	Frozen             bool    `json:"frozen"`
	Buckets            Buckets `json:"buckets"`
	CurrentBucketIndex int     `json:"current_bucket_index"`
}

// DailyProvider supplies the daily budget snapshot. A nil snapshot means the
// daily budget is unavailable.
type DailyProvider interface {
	Snapshot(now time.Time) *DailySnapshot
}

// DailySoftLimit converts the current bucket's unspent plan into a power
// limit over the rest of the bucket. It returns nil when the daily budget is
// disabled or the snapshot carries no usable bucket.
func DailySoftLimit(s *DailySnapshot, now time.Time) *float64 {
	if s == nil || !s.Enabled {
		return nil
	}
	i := s.CurrentBucketIndex
	if i < 0 || i >= len(s.Buckets.PlannedKWh) || i >= len(s.Buckets.StartUTC) {
		return nil
	}
	if s.Exceeded {
		zero := 0.0
		return &zero
	}
	planned := s.Buckets.PlannedKWh[i]
	actual := 0.0
	if i < len(s.Buckets.ActualKWh) {
		actual = s.Buckets.ActualKWh[i]
	}
	start := s.Buckets.StartUTC[i]
	end := start.Add(time.Hour)
	if i+1 < len(s.Buckets.StartUTC) && s.Buckets.StartUTC[i+1].After(start) {
		end = s.Buckets.StartUTC[i+1]
	}
	left := end.Sub(now)
	if left < minRemaining {
		left = minRemaining
	}
	limit := math.Max(0, planned-actual) / left.Hours()
	return &limit
}
