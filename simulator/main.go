// Command simulator plays the home automation hub over MQTT so loadguard can
// be exercised without real devices.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	coremqtt "github.com/kilianp07/loadguard/core/mqtt"
	"github.com/kilianp07/loadguard/infra/logger"
)

func main() {
	cfg := parseFlags()
	level := "warn"
	if cfg.Verbose {
		level = "debug"
	}
	if err := logger.Configure(logger.Options{Level: level, Console: true}); err != nil {
		panic(err)
	}
	log := logger.New("simulator")
	if err := cfg.Validate(); err != nil {
		log.Errorf("invalid config: %v", err)
		os.Exit(2)
	}

	household := defaultHousehold()
	if cfg.DevicesFile != "" {
		var err error
		if household, err = readHousehold(cfg.DevicesFile); err != nil {
			log.Errorf("devices file: %v", err)
			os.Exit(1)
		}
	}
	base := household.BaseLoadKW
	if cfg.BaseLoadKW > 0 {
		base = cfg.BaseLoadKW
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := NewHub(household.Devices, base)
	hub.Topics = coremqtt.Topics{Prefix: cfg.TopicPrefix}
	hub.Interval = cfg.Interval
	hub.Strategy = RandomAck{Delay: cfg.AckLatency, DropRate: cfg.DropRate}
	log.Infof("simulating %d devices on %s", len(household.Devices), cfg.Broker)
	if err := hub.Run(ctx, cfg.Broker); err != nil {
		log.Errorf("hub: %v", err)
		os.Exit(1)
	}
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.TopicPrefix, "topic-prefix", coremqtt.DefaultPrefix, "MQTT topic prefix")
	flag.StringVar(&cfg.DevicesFile, "devices", "", "household YAML file")
	flag.Float64Var(&cfg.BaseLoadKW, "base-load", 0, "uncontrolled base load in kW")
	flag.DurationVar(&cfg.Interval, "interval", 10*time.Second, "meter publish interval")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 0, "ack latency")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "ack drop rate")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	return cfg
}
