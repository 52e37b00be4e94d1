// Package connectors fetches day-ahead electricity prices and turns them into
// the cheap and expensive hours used for price optimisation.
package connectors

import (
	"context"
	"sort"
	"time"
)

// PricePoint is the market price of one delivery interval.
type PricePoint struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	PriceEURMWh float64   `json:"price_eur_mwh"`
}

// PriceClient fetches prices for the delivery intervals in [start, end).
type PriceClient interface {
	Fetch(ctx context.Context, start, end time.Time) ([]PricePoint, error)
}

// Classify averages points per local hour of the day containing day and
// returns the cheapest nCheap hours and the most expensive nExpensive hours,
// both ascending. An hour is never in both sets. Hours without prices are
// ignored. Ties resolve to the earlier hour.
func Classify(points []PricePoint, day time.Time, loc *time.Location, nCheap, nExpensive int) (cheap, expensive []int) {
	if loc == nil {
		loc = time.UTC
	}
	local := day.In(loc)
	y, m, d := local.Date()
	var sum [24]float64
	var count [24]int
	for _, p := range points {
		t := p.Start.In(loc)
		if ty, tm, td := t.Date(); ty != y || tm != m || td != d {
			continue
		}
		sum[t.Hour()] += p.PriceEURMWh
		count[t.Hour()]++
	}
	type hourPrice struct {
		hour  int
		price float64
	}
	var hours []hourPrice
	for h := 0; h < 24; h++ {
		if count[h] > 0 {
			hours = append(hours, hourPrice{h, sum[h] / float64(count[h])})
		}
	}
	sort.SliceStable(hours, func(i, j int) bool { return hours[i].price < hours[j].price })

	taken := map[int]bool{}
	for i := 0; i < nCheap && i < len(hours); i++ {
		cheap = append(cheap, hours[i].hour)
		taken[hours[i].hour] = true
	}
	for i := len(hours) - 1; i >= 0 && len(expensive) < nExpensive; i-- {
		if !taken[hours[i].hour] {
			expensive = append(expensive, hours[i].hour)
		}
	}
	sort.Ints(cheap)
	sort.Ints(expensive)
	return cheap, expensive
}
