package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/loadguard/core/metrics"
)

// PromSink exposes plan, power and actuation events as Prometheus metrics.
type PromSink struct {
	plans        *prometheus.CounterVec
	shedCount    prometheus.Gauge
	softLimit    prometheus.Gauge
	totalPower   prometheus.Gauge
	controlled   prometheus.Gauge
	usedHour     prometheus.Gauge
	resets       *prometheus.CounterVec
	actuations   *prometheus.CounterVec
	actLatency   *prometheus.HistogramVec
	shortfalls   prometheus.Counter
	shortfallNow prometheus.Gauge
}

// NewPromSink registers the sink collectors on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered under the same name are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	s := &PromSink{}
	if s.plans, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loadguard_plans_total",
		Help: "Emitted plans by trigger and whether an action changed",
	}, []string{"trigger", "changed"})); err != nil {
		return nil, err
	}
	if s.shedCount, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_plan_shed_count",
		Help: "Devices shed in the latest plan",
	})); err != nil {
		return nil, err
	}
	if s.softLimit, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_soft_limit_kw",
		Help: "Binding soft limit of the latest plan",
	})); err != nil {
		return nil, err
	}
	if s.totalPower, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_total_power_kw",
		Help: "Last metered total power",
	})); err != nil {
		return nil, err
	}
	if s.controlled, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_controlled_power_kw",
		Help: "Last metered power of controlled devices",
	})); err != nil {
		return nil, err
	}
	if s.usedHour, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_hour_used_kwh",
		Help: "Energy used in the current hour",
	})); err != nil {
		return nil, err
	}
	if s.resets, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loadguard_tracker_anomalies_total",
		Help: "Tracker resets and unreliable sampling gaps",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if s.actuations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loadguard_actuations_total",
		Help: "Device commands by action and outcome",
	}, []string{"device_id", "action", "success"})); err != nil {
		return nil, err
	}
	if s.actLatency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loadguard_actuation_latency_seconds",
		Help:    "Time taken by a device command",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})); err != nil {
		return nil, err
	}
	if s.shortfalls, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loadguard_shortfalls_total",
		Help: "Number of times the guard entered shortfall",
	})); err != nil {
		return nil, err
	}
	if s.shortfallNow, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_in_shortfall",
		Help: "1 while in shortfall",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordPlan counts the plan and updates the plan gauges.
func (s *PromSink) RecordPlan(ev coremetrics.PlanEvent) error {
	s.plans.WithLabelValues(ev.Trigger, strconv.FormatBool(ev.DetailChanged)).Inc()
	s.shedCount.Set(float64(ev.ShedCount))
	s.softLimit.Set(ev.Meta.SoftLimitKW)
	return nil
}

// RecordPower updates the power gauges.
func (s *PromSink) RecordPower(ev coremetrics.PowerEvent) error {
	s.totalPower.Set(ev.TotalKW)
	if ev.ControlledKW != nil {
		s.controlled.Set(*ev.ControlledKW)
	}
	s.usedHour.Set(ev.UsedHourKWh)
	if ev.Reset {
		s.resets.WithLabelValues("reset").Inc()
	}
	if ev.Unreliable {
		s.resets.WithLabelValues("unreliable").Inc()
	}
	return nil
}

// RecordActuation counts the command and observes its latency.
func (s *PromSink) RecordActuation(ev coremetrics.ActuationEvent) error {
	s.actuations.WithLabelValues(ev.DeviceID, ev.Action, strconv.FormatBool(ev.Success)).Inc()
	s.actLatency.WithLabelValues(ev.Action).Observe(ev.Latency.Seconds())
	return nil
}

// RecordShortfall tracks shortfall transitions.
func (s *PromSink) RecordShortfall(ev coremetrics.ShortfallEvent) error {
	if ev.Active {
		s.shortfalls.Inc()
		s.shortfallNow.Set(1)
		return nil
	}
	s.shortfallNow.Set(0)
	return nil
}
