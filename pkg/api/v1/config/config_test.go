package config

import (
	"testing"
	"time"

	"github.com/koding/multiconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *CliConfig {
	t.Helper()
	cfg := &CliConfig{}
	require.NoError(t, (&multiconfig.TagLoader{}).Load(cfg))
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadDefaults(t)
	assert.Equal(t, "thermia_diplomat", cfg.PumpType)
	assert.Equal(t, "heatpump", cfg.GatewayID)
	assert.Equal(t, "tcp://127.0.0.1:1883", cfg.MQTTBroker)
	assert.Equal(t, "heatpump", cfg.InfluxBucket)
	assert.Equal(t, ":8050", cfg.HTTPAddress)
	assert.Equal(t, 2.5, cfg.ElectricityPrice)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	var tests = []struct {
		name   string
		mutate func(*CliConfig)
	}{
		{name: "empty pump type", mutate: func(c *CliConfig) { c.PumpType = "" }},
		{name: "empty gateway id", mutate: func(c *CliConfig) { c.GatewayID = "" }},
		{name: "qos out of range", mutate: func(c *CliConfig) { c.MQTTQoS = 3 }},
		{name: "bad lookback", mutate: func(c *CliConfig) { c.LatestLookback = "yesterday" }},
		{name: "negative cycle threshold", mutate: func(c *CliConfig) { c.MinCycleSeconds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLookback(t *testing.T) {
	cfg := loadDefaults(t)
	assert.Equal(t, 24*time.Hour, cfg.Lookback())
	cfg.LatestLookback = "6h"
	assert.Equal(t, 6*time.Hour, cfg.Lookback())
}
