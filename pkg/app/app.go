package app

import (
	"context"
	"sync"
	"time"

	"github.com/heatmon/heatmon/pkg/analytics"
	"github.com/heatmon/heatmon/pkg/api/v1/config"
	"github.com/heatmon/heatmon/pkg/broker"
	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/heatmon/heatmon/pkg/metrics"
	"github.com/heatmon/heatmon/pkg/pipeline"
	"github.com/heatmon/heatmon/pkg/server"
	"github.com/heatmon/heatmon/pkg/storage"
	"github.com/heatmon/heatmon/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// App wires catalog, storage, pipeline, analytics and the HTTP API
// together and manages their lifecycle.
type App struct {
	wg     *sync.WaitGroup
	config *config.CliConfig

	store  storage.Store
	client *transport.Client
}

func New(config *config.CliConfig) *App {
	return &App{
		wg:     &sync.WaitGroup{},
		config: config,
	}
}

// Start brings every component up. A missing pump profile or an unreachable
// broker is fatal; a missing InfluxDB configuration falls back to in-memory
// storage so the collector still works on a box without a database.
func (a *App) Start(ctx context.Context) error {
	cat, err := catalog.Load(a.config.PumpType, a.config.ProfileDir)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	if a.config.InfluxURL != "" {
		influx, err := storage.NewInflux(ctx,
			a.config.InfluxURL,
			a.config.InfluxToken,
			a.config.InfluxOrg,
			a.config.InfluxBucket,
			time.Duration(a.config.InfluxTimeout)*time.Second,
		)
		if err != nil {
			return err
		}
		a.store = influx
	} else {
		logrus.Warn("no influxurl configured, points are kept in memory only")
		a.store = storage.NewMemory()
	}

	if a.config.EmbeddedBroker {
		if _, err := broker.Start(ctx, a.wg, a.config.BrokerAddress); err != nil {
			return err
		}
		logrus.WithField("address", a.config.BrokerAddress).Info("embedded mqtt broker started")
	}

	pipe := pipeline.New(cat, a.store, m)

	a.client = transport.New(transport.Config{
		Broker:   a.config.MQTTBroker,
		Username: a.config.MQTTUsername,
		Password: a.config.MQTTPassword,
		ClientID: a.config.MQTTClientID,
		QoS:      byte(a.config.MQTTQoS),
	})
	if err := a.client.Connect(ctx); err != nil {
		return err
	}

	topic := transport.GatewayTopic(a.config.GatewayID)
	err = a.client.Subscribe(ctx, topic, func(ctx context.Context, topic, payload string, arrival time.Time) {
		if err := pipe.HandleMessage(ctx, topic, payload, arrival); err != nil {
			logrus.WithError(err).WithField("topic", topic).Error("error handling message")
		}
	})
	if err != nil {
		return err
	}

	engineCfg := analytics.DefaultConfig()
	engineCfg.LatestLookback = a.config.Lookback()
	engineCfg.MinCycleDuration = time.Duration(a.config.MinCycleSeconds) * time.Second
	engine := analytics.New(a.store, cat, engineCfg)

	srv := server.New(a.config.HTTPAddress, engine, cat, m, a.config.ElectricityPrice)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := srv.Run(ctx); err != nil {
			logrus.WithError(err).Error("http server stopped")
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()
		a.client.Disconnect()
		a.store.Close()
	}()

	return nil
}

// Wait blocks until every component started by Start has shut down.
func (a *App) Wait() {
	a.wg.Wait()
}
