// Package budget turns hourly and daily energy budgets into instantaneous
// soft limits for the plan engine.
package budget

import (
	"math"
	"time"
)

// minRemaining bounds the divisor near the end of an hour or bucket.
const minRemaining = time.Minute

// HourlySoftLimit spreads the energy left in the current hour's budget over
// the rest of the hour. The result is clamped to [0, limit - margin]. A
// non-positive budget disables the energy cap and yields limit - margin.
func HourlySoftLimit(budgetKWh, usedKWh float64, now time.Time, limitKW, marginKW float64) float64 {
	ceiling := math.Max(0, limitKW-marginKW)
	if budgetKWh <= 0 {
		return ceiling
	}
	remainingKWh := budgetKWh - usedKWh
	if remainingKWh <= 0 {
		return 0
	}
	left := now.UTC().Truncate(time.Hour).Add(time.Hour).Sub(now)
	if left < minRemaining {
		left = minRemaining
	}
	rate := remainingKWh / left.Hours()
	return math.Min(ceiling, math.Max(0, rate))
}

// HourlyExhausted reports whether nothing is left of the hourly budget.
func HourlyExhausted(budgetKWh, usedKWh float64) bool {
	return budgetKWh > 0 && budgetKWh-usedKWh <= 0
}
