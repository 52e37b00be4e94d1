package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/loadguard/core/metrics"
	"github.com/kilianp07/loadguard/core/model"
)

func TestPromSink_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordPlan(coremetrics.PlanEvent{Trigger: "power", ShedCount: 2, DetailChanged: true, Meta: model.PlanMeta{SoftLimitKW: 4.7}}))
	require.NoError(t, s.RecordPower(coremetrics.PowerEvent{TotalKW: 3.5, ControlledKW: model.Float(1.2), Reset: true}))
	require.NoError(t, s.RecordActuation(coremetrics.ActuationEvent{DeviceID: "heater", Action: "shed", Success: true, Latency: 50 * time.Millisecond}))
	require.NoError(t, s.RecordShortfall(coremetrics.ShortfallEvent{Active: true}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.plans.WithLabelValues("power", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.shedCount))
	assert.Equal(t, 4.7, testutil.ToFloat64(s.softLimit))
	assert.Equal(t, 3.5, testutil.ToFloat64(s.totalPower))
	assert.Equal(t, 1.2, testutil.ToFloat64(s.controlled))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.resets.WithLabelValues("reset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.actuations.WithLabelValues("heater", "shed", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.shortfalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.shortfallNow))

	require.NoError(t, s.RecordShortfall(coremetrics.ShortfallEvent{Active: false}))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.shortfallNow))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.shortfalls))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, a.RecordPlan(coremetrics.PlanEvent{Trigger: "periodic"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.plans.WithLabelValues("periodic", "false")))
}
