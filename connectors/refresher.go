package connectors

import (
	"context"
	"fmt"
	"time"

	corelogger "github.com/kilianp07/loadguard/core/logger"
	coremon "github.com/kilianp07/loadguard/core/monitoring"
)

// ScheduleSink receives the classified price schedule.
type ScheduleSink interface {
	SetPriceSchedule(cheap, expensive []int)
}

// Refresher periodically fetches today's prices and publishes the cheap and
// expensive hours to a ScheduleSink.
type Refresher struct {
	Client         PriceClient
	Sink           ScheduleSink
	CheapHours     int
	ExpensiveHours int
	Interval       time.Duration
	Location       *time.Location
	Logger         corelogger.Logger
	Now            func() time.Time
}

// Refresh fetches the prices of the day containing now and updates the sink.
func (r *Refresher) Refresh(ctx context.Context, now time.Time) error {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	points, err := r.Client.Fetch(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("fetch prices: no prices for %s", start.Format("2006-01-02"))
	}
	cheap, expensive := Classify(points, now, loc, r.CheapHours, r.ExpensiveHours)
	r.Sink.SetPriceSchedule(cheap, expensive)
	r.logger().Infof("price schedule updated: cheap %v expensive %v", cheap, expensive)
	return nil
}

// Run refreshes immediately and then every Interval until ctx is canceled.
// Failures keep the previous schedule.
func (r *Refresher) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := r.Refresh(ctx, now()); err != nil {
			r.logger().Warnf("price refresh: %v", err)
			coremon.CaptureException(err, map[string]string{"module": "price"})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Refresher) logger() corelogger.Logger {
	if r.Logger == nil {
		return corelogger.Nop{}
	}
	return r.Logger
}
