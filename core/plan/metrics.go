package plan

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rebuildLatency   *prometheus.HistogramVec
	rebuildsTotal    *prometheus.CounterVec
	shedDevices      prometheus.Gauge
	headroomKW       prometheus.Gauge
	restoreCooldown  prometheus.Gauge
	actuationFailure *prometheus.CounterVec
	shortfallActive  prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Gauge, prometheus.Gauge, prometheus.Gauge, *prometheus.CounterVec, prometheus.Gauge) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loadguard_plan_rebuild_seconds",
			Help:    "Duration of a plan rebuild cycle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadguard_plan_rebuilds_total",
			Help: "Number of plan rebuilds by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)
	shed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_shed_devices",
		Help: "Number of devices planned as shed",
	})
	head := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_headroom_kw",
		Help: "Headroom below the soft limit in kW",
	})
	cool := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_restore_cooldown_seconds",
		Help: "Current restore cooldown backoff",
	})
	fail := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadguard_actuation_failures_total",
			Help: "Number of failed device commands",
		},
		[]string{"action"},
	)
	short := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadguard_shortfall_active",
		Help: "1 while the capacity guard is in shortfall",
	})
	return lat, total, shed, head, cool, fail, short
}

func init() {
	rebuildLatency, rebuildsTotal, shedDevices, headroomKW, restoreCooldown, actuationFailure, shortfallActive = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers plan metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(rebuildLatency, rebuildsTotal, shedDevices, headroomKW, restoreCooldown, actuationFailure, shortfallActive)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	rebuildLatency, rebuildsTotal, shedDevices, headroomKW, restoreCooldown, actuationFailure, shortfallActive = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
