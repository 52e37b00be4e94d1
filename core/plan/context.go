package plan

import (
	"math"
	"time"

	"github.com/kilianp07/loadguard/core/budget"
	"github.com/kilianp07/loadguard/core/model"
)

// zeroPowerKW is the reading below which total power counts as zero.
const zeroPowerKW = 0.01

// ContextInput gathers the raw figures a cycle starts from.
type ContextInput struct {
	Now           time.Time
	Devices       []model.Device
	TotalKW       *float64
	MeasurementMs int64
	LimitKW       float64
	MarginKW      float64
	BudgetKWh     float64
	UsedKWh       float64
	Daily         *budget.DailySnapshot
}

// Context is the immutable view of one plan cycle.
type Context struct {
	Now           time.Time
	Devices       []model.Device
	TotalKW       *float64
	MeasurementMs int64

	LimitKW  float64
	MarginKW float64

	CapacitySoftLimitKW float64
	DailySoftLimitKW    *float64
	SoftLimitKW         float64
	Source              model.LimitSource
	HeadroomKW          *float64

	UsedKWh               float64
	BudgetKWh             float64
	HourlyBudgetExhausted bool
	Daily                 *budget.DailySnapshot
}

// BuildContext blends the hourly capacity limit and the daily budget into a
// single soft limit and derives the headroom.
func BuildContext(in ContextInput) Context {
	c := Context{
		Now:           in.Now,
		Devices:       in.Devices,
		TotalKW:       in.TotalKW,
		MeasurementMs: in.MeasurementMs,
		LimitKW:       in.LimitKW,
		MarginKW:      in.MarginKW,
		UsedKWh:       in.UsedKWh,
		BudgetKWh:     in.BudgetKWh,
		Daily:         in.Daily,
	}
	c.CapacitySoftLimitKW = budget.HourlySoftLimit(in.BudgetKWh, in.UsedKWh, in.Now, in.LimitKW, in.MarginKW)
	c.HourlyBudgetExhausted = budget.HourlyExhausted(in.BudgetKWh, in.UsedKWh)
	c.DailySoftLimitKW = budget.DailySoftLimit(in.Daily, in.Now)
	c.SoftLimitKW, c.Source = blend(c.CapacitySoftLimitKW, c.DailySoftLimitKW)

	if in.TotalKW != nil {
		h := c.SoftLimitKW - *in.TotalKW
		if math.Abs(*in.TotalKW) < zeroPowerKW && c.HourlyBudgetExhausted {
			h = -1
		}
		c.HeadroomKW = &h
	}
	return c
}

func blend(capacity float64, daily *float64) (float64, model.LimitSource) {
	if daily == nil {
		return capacity, model.LimitCapacity
	}
	switch {
	case math.Abs(capacity-*daily) < 1e-9:
		return capacity, model.LimitBoth
	case *daily < capacity:
		return *daily, model.LimitDaily
	default:
		return capacity, model.LimitCapacity
	}
}

// Meta renders the cycle figures for the emitted plan.
func (c Context) Meta() model.PlanMeta {
	return model.PlanMeta{
		TotalKW:               model.CloneFloat(c.TotalKW),
		SoftLimitKW:           c.SoftLimitKW,
		CapacitySoftLimitKW:   c.CapacitySoftLimitKW,
		DailySoftLimitKW:      model.CloneFloat(c.DailySoftLimitKW),
		SoftLimitSource:       c.Source,
		HeadroomKW:            model.CloneFloat(c.HeadroomKW),
		UsedKWh:               c.UsedKWh,
		BudgetKWh:             c.BudgetKWh,
		HourlyBudgetExhausted: c.HourlyBudgetExhausted,
	}
}
