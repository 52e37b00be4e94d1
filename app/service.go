// Package app wires configuration, transport, persistence and observability
// around the plan engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	apiplan "github.com/kilianp07/loadguard/api/plan"
	"github.com/kilianp07/loadguard/config"
	"github.com/kilianp07/loadguard/connectors"
	pricefactory "github.com/kilianp07/loadguard/connectors/factory"
	"github.com/kilianp07/loadguard/core/budget"
	coremetrics "github.com/kilianp07/loadguard/core/metrics"
	"github.com/kilianp07/loadguard/core/model"
	coremon "github.com/kilianp07/loadguard/core/monitoring"
	"github.com/kilianp07/loadguard/core/plan"
	planlog "github.com/kilianp07/loadguard/core/plan/logging"
	"github.com/kilianp07/loadguard/core/settings"
	"github.com/kilianp07/loadguard/infra/logger"
	"github.com/kilianp07/loadguard/infra/metrics"
	"github.com/kilianp07/loadguard/infra/monitoring"
	"github.com/kilianp07/loadguard/infra/mqtt"
	"github.com/kilianp07/loadguard/infra/store"
)

// Service owns the plan engine and every adapter around it.
type Service struct {
	Engine   *plan.Engine
	Settings *settings.Store

	cfg       *config.Config
	store     store.Store
	client    *mqtt.PahoClient
	meter     *mqtt.Meter
	inventory *mqtt.Inventory
	prices    *connectors.Refresher
	sink      coremetrics.MetricsSink
	logFile   io.Closer
	log       logger.Logger
}

// Options override adapters, mainly for tests and one-shot commands.
type Options struct {
	// Devices replaces the MQTT inventory.
	Devices plan.DeviceSource
	// Actuator replaces the MQTT actuator.
	Actuator plan.Actuator
	// Prices replaces the configured price feed.
	Prices connectors.PriceClient
	Now    func() time.Time
}

// SetupLogging applies the logging section. The returned closer releases the
// rotated log file, if any.
func SetupLogging(cfg config.LoggingConfig) (io.Closer, error) {
	o := logger.Options{Level: cfg.Level, Console: cfg.Console}
	var closer io.Closer
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		o.Output = io.MultiWriter(os.Stderr, lj)
		closer = lj
	}
	if err := logger.Configure(o); err != nil {
		return nil, err
	}
	return closer, nil
}

// New creates a Service from the configuration. Adapters left nil in opts
// are built from cfg: MQTT when a broker is configured, otherwise the static
// devices and a log-only actuator.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	logFile, err := SetupLogging(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	s := &Service{cfg: cfg, logFile: logFile, log: logger.New("service")}
	if err := s.build(ctx, opts); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context, opts Options) error {
	cfg := s.cfg
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	s.store = st

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	s.sink = sink

	plog, err := planlog.Open(cfg.PlanLog)
	if err != nil {
		return fmt.Errorf("plan log: %w", err)
	}

	setOpts, err := cfg.SettingsOptions()
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	s.Settings = settings.New(setOpts)

	if err := s.buildPrices(opts.Prices); err != nil {
		return err
	}

	deps := plan.Deps{
		Devices:  opts.Devices,
		Settings: s.Settings,
		Actuator: opts.Actuator,
		Store:    st,
		Metrics:  sink,
		PlanLog:  plog,
		Logger:   logger.New("plan"),
		Now:      opts.Now,
	}

	if cfg.MQTT.Enabled() && (deps.Devices == nil || deps.Actuator == nil) {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.client = client
		if deps.Devices == nil {
			s.inventory = mqtt.NewInventory(client, cfg.StaticDevices())
			deps.Devices = s.inventory
		}
		if deps.Actuator == nil {
			deps.Actuator = client
		}
		deps.Notifier = mqtt.NewNotifier(client)
	}
	if deps.Devices == nil {
		deps.Devices = StaticDevices(cfg.StaticDevices())
	}
	if deps.Actuator == nil {
		deps.Actuator = LogActuator{log: logger.New("actuator")}
	}

	var eng *plan.Engine
	if cfg.Budget.DailyKWh > 0 {
		daily := budget.NewEvenDailyProvider(cfg.Budget.DailyKWh, func(h time.Time) float64 { return eng.HourUsage(h) })
		daily.SetFrozen(cfg.Budget.Frozen)
		deps.Daily = daily
	}
	eng, err = plan.New(cfg.Engine, cfg.Capacity.Guard(), deps)
	if err != nil {
		return fmt.Errorf("plan engine: %w", err)
	}
	s.Engine = eng
	if err := eng.Load(ctx); err != nil {
		s.log.Warnf("restore state: %v", err)
	}

	if s.client != nil {
		s.meter = mqtt.NewMeter(s.client, eng)
	}
	return nil
}

func (s *Service) buildPrices(client connectors.PriceClient) error {
	pc := s.cfg.Price
	if client == nil && !pc.FeedEnabled() {
		return nil
	}
	if client == nil {
		var err error
		if client, err = pricefactory.NewPriceClient(pc.Source); err != nil {
			return fmt.Errorf("price feed: %w", err)
		}
	}
	loc, err := pc.Location()
	if err != nil {
		return fmt.Errorf("price feed: %w", err)
	}
	s.prices = &connectors.Refresher{
		Client:         client,
		Sink:           s.Settings,
		CheapHours:     pc.CheapCount,
		ExpensiveHours: pc.ExpensiveCount,
		Interval:       time.Duration(pc.RefreshMinutes) * time.Minute,
		Location:       loc,
		Logger:         logger.New("price"),
	}
	return nil
}

// Run starts the engine, the MQTT subscriptions and the HTTP servers, and
// blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()
	if s.inventory != nil {
		s.inventory.OnChange(func(id string) { s.Engine.RequestRebuild("device:" + id) })
		if err := s.inventory.Start(); err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
	}
	if s.meter != nil {
		if err := s.meter.Start(ctx); err != nil {
			return fmt.Errorf("meter: %w", err)
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.StartPromServer(ctx, addr, nil); err != nil {
				errCh <- fmt.Errorf("prom server: %w", err)
			}
		}()
	}
	if s.prices != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.prices.Run(ctx)
		}()
	}
	if addr := s.cfg.API.Addr; addr != "-" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.serveAPI(ctx, addr); err != nil {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
	}

	s.Engine.Run(ctx)
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	apiplan.Register(mux, apiplan.Options{
		Source:   s.Engine,
		Settings: s.Settings,
		Logs:     s.Engine.PlanLog(),
		Token:    s.cfg.API.Token,
	})
	return mux
}

func (s *Service) serveAPI(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
	}()
	s.log.Infof("serving api on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.Engine != nil {
		errs = append(errs, s.Engine.Close())
	}
	if s.Settings != nil {
		s.Settings.Close()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	if s.sink != nil {
		coremetrics.CloseSink(s.sink)
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	coremon.Flush(2 * time.Second)
	if s.logFile != nil {
		errs = append(errs, s.logFile.Close())
	}
	return errors.Join(errs...)
}

// StaticDevices is a fixed device list.
type StaticDevices []model.Device

// Devices implements plan.DeviceSource.
func (d StaticDevices) Devices(context.Context) ([]model.Device, error) {
	out := make([]model.Device, len(d))
	copy(out, d)
	return out, nil
}

// LogActuator only logs commands. It is used when no broker is configured.
type LogActuator struct {
	log logger.Logger
}

func (a LogActuator) SetCapability(_ context.Context, deviceID, capabilityID string, value float64) error {
	a.logger().Infof("dry run: set %s.%s to %.1f", deviceID, capabilityID, value)
	return nil
}

func (a LogActuator) TurnOnOff(_ context.Context, deviceID string, on bool) error {
	a.logger().Infof("dry run: turn %s on=%t", deviceID, on)
	return nil
}

func (a LogActuator) logger() logger.Logger {
	if a.log == nil {
		return logger.NopLogger{}
	}
	return a.log
}
