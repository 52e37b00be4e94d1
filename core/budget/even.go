package budget

import (
	"sync"
	"time"
)

// UsageFunc returns the energy recorded in the UTC hour starting at hour.
type UsageFunc func(hour time.Time) float64

// EvenDailyProvider splits a fixed daily budget evenly across the 24 UTC
// hours of the day and reads actual usage from the energy tracker. Unspent
// energy of past hours is redistributed over the hours left.
type EvenDailyProvider struct {
	mu       sync.RWMutex
	dailyKWh float64
	frozen   bool
	usage    UsageFunc
}

// NewEvenDailyProvider returns a provider. A non-positive dailyKWh disables
// the daily budget.
func NewEvenDailyProvider(dailyKWh float64, usage UsageFunc) *EvenDailyProvider {
	return &EvenDailyProvider{dailyKWh: dailyKWh, usage: usage}
}

// SetDailyKWh changes the daily budget.
func (p *EvenDailyProvider) SetDailyKWh(kwh float64) {
	p.mu.Lock()
	p.dailyKWh = kwh
	p.mu.Unlock()
}

// SetFrozen freezes the plan: past buckets are no longer redistributed.
func (p *EvenDailyProvider) SetFrozen(frozen bool) {
	p.mu.Lock()
	p.frozen = frozen
	p.mu.Unlock()
}

// Snapshot implements DailyProvider.
func (p *EvenDailyProvider) Snapshot(now time.Time) *DailySnapshot {
	p.mu.RLock()
	daily, frozen, usage := p.dailyKWh, p.frozen, p.usage
	p.mu.RUnlock()
	if daily <= 0 || usage == nil {
		return &DailySnapshot{Enabled: false}
	}

	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	current := now.Hour()
	even := daily / 24

	s := &DailySnapshot{Enabled: true, Frozen: frozen, CurrentBucketIndex: current}
	used := 0.0
	for h := 0; h < 24; h++ {
		start := day.Add(time.Duration(h) * time.Hour)
		actual := 0.0
		if h <= current {
			actual = usage(start)
		}
		s.Buckets.StartUTC = append(s.Buckets.StartUTC, start)
		s.Buckets.ActualKWh = append(s.Buckets.ActualKWh, actual)
		if h < current {
			used += actual
		}
	}
	// Hours from the current one onwards share what the past hours left.
	left := daily - used
	for h := 0; h < 24; h++ {
		planned := even
		if !frozen && h >= current {
			planned = left / float64(24-current)
			if planned < 0 {
				planned = 0
			}
		}
		s.Buckets.PlannedKWh = append(s.Buckets.PlannedKWh, planned)
	}
	used += s.Buckets.ActualKWh[current]

	frac := now.Sub(s.Buckets.StartUTC[current]).Hours()
	s.UsedNowKWh = used
	s.AllowedNowKWh = even*float64(current) + even*frac
	s.RemainingKWh = daily - used
	s.Exceeded = used >= daily
	return s
}
