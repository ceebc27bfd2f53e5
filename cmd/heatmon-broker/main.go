package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/heatmon/heatmon/pkg/broker"
	"github.com/koding/multiconfig"
	"github.com/sirupsen/logrus"
)

type cliConfig struct {
	Address  string `default:":1883"`
	LogLevel string `default:"info"`
}

// Standalone broker for setups where the collector and the gateway run on
// different hosts and no external MQTT broker exists.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	config := &cliConfig{}
	if err := multiconfig.New().Load(config); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
	lvl, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
	logrus.SetLevel(lvl)

	wg := &sync.WaitGroup{}
	if _, err := broker.Start(ctx, wg, config.Address); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
	logrus.WithField("address", config.Address).Info("mqtt broker listening")

	wg.Wait()
}
