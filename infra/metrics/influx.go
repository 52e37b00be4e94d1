package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/loadguard/core/metrics"
	"github.com/kilianp07/loadguard/infra/logger"
)

// InfluxConfig points the sink at an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes plan and power events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPlan writes one plan_cycle point.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	p := write.NewPointWithMeasurement("plan_cycle").
		AddTag("trigger", ev.Trigger).
		AddTag("limit_source", string(ev.Meta.SoftLimitSource)).
		AddTag("changed", strconv.FormatBool(ev.DetailChanged)).
		AddField("plan_id", ev.PlanID).
		AddField("shed_count", ev.ShedCount).
		AddField("restore_count", ev.RestoreCount).
		AddField("device_count", ev.DeviceCount).
		AddField("soft_limit_kw", round3(ev.Meta.SoftLimitKW)).
		AddField("shedding_active", ev.Meta.SheddingActive).
		AddField("in_shortfall", ev.Meta.InShortfall).
		AddField("duration_ms", round3(float64(ev.Duration.Microseconds())/1000))
	if ev.Meta.HeadroomKW != nil {
		p.AddField("headroom_kw", round3(*ev.Meta.HeadroomKW))
	}
	p.SetTime(ev.Time)
	return s.write(p)
}

// RecordPower writes one power_sample point.
func (s *InfluxSink) RecordPower(ev coremetrics.PowerEvent) error {
	p := write.NewPointWithMeasurement("power_sample").
		AddField("total_kw", round3(ev.TotalKW)).
		AddField("used_hour_kwh", round3(ev.UsedHourKWh)).
		AddField("budget_kwh", round3(ev.BudgetKWh)).
		AddField("reset", ev.Reset).
		AddField("unreliable", ev.Unreliable)
	if ev.ControlledKW != nil {
		p.AddField("controlled_kw", round3(*ev.ControlledKW))
	}
	p.SetTime(ev.Time)
	return s.write(p)
}

// RecordActuation writes one device_command point.
func (s *InfluxSink) RecordActuation(ev coremetrics.ActuationEvent) error {
	p := write.NewPointWithMeasurement("device_command").
		AddTag("device_id", ev.DeviceID).
		AddTag("action", ev.Action).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("latency_ms", round3(float64(ev.Latency.Microseconds())/1000))
	if ev.Value != nil {
		p.AddField("value", round3(*ev.Value))
	}
	if ev.Error != "" {
		p.AddField("error", ev.Error)
	}
	p.SetTime(ev.Time)
	return s.write(p)
}

// RecordShortfall writes one capacity_shortfall point.
func (s *InfluxSink) RecordShortfall(ev coremetrics.ShortfallEvent) error {
	p := write.NewPointWithMeasurement("capacity_shortfall").
		AddField("active", ev.Active).
		AddField("deficit_kw", round3(ev.DeficitKW)).
		AddField("limit_kw", round3(ev.LimitKW)).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
