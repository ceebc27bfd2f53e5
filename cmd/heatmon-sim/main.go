package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/heatmon/heatmon/pkg/simulator"
	"github.com/heatmon/heatmon/pkg/transport"
	"github.com/koding/multiconfig"
	"github.com/sirupsen/logrus"
)

type cliConfig struct {
	PumpType    string  `default:"thermia_diplomat"`
	ProfileDir  string
	GatewayID   string  `default:"heatpump"`
	MQTTBroker  string  `default:"tcp://127.0.0.1:1883"`
	Interval    string  `default:"10s"`
	OutdoorTemp float64 `default:"-5.0"`
	Seed        int64
	LogLevel    string  `default:"info"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()
	err := Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logrus.Error(err)
		os.Exit(1)
	}
}

func Run(ctx context.Context) error {
	config := &cliConfig{}
	err := multiconfig.New().Load(config)
	if err != nil {
		return err
	}
	lvl, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("error setting logrus loglevel: %w", err)
	}
	logrus.SetLevel(lvl)

	interval, err := time.ParseDuration(config.Interval)
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	cat, err := catalog.Load(config.PumpType, config.ProfileDir)
	if err != nil {
		return err
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sim := simulator.New(cat, rand.New(rand.NewSource(seed)))
	sim.SetOutdoorTemp(config.OutdoorTemp)

	client := transport.New(transport.Config{Broker: config.MQTTBroker})
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	logrus.WithFields(logrus.Fields{
		"profile":  config.PumpType,
		"gateway":  config.GatewayID,
		"interval": interval,
	}).Info("simulator started")

	return sim.Run(ctx, client, config.GatewayID, interval)
}
