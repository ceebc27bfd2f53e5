package config

import (
	"fmt"
	"time"
)

// CliConfig is the flat configuration surface, populated from flags,
// environment and optional config file by multiconfig. Defaults give a
// working single-box setup: embedded broker, in-memory storage.
type CliConfig struct {
	PumpType   string `default:"thermia_diplomat"`
	ProfileDir string

	GatewayID    string `default:"heatpump"`
	MQTTBroker   string `default:"tcp://127.0.0.1:1883"`
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string
	MQTTQoS      int `default:"0"`

	EmbeddedBroker bool
	BrokerAddress  string `default:":1883"`

	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string `default:"heatmon"`
	InfluxBucket  string `default:"heatpump"`
	InfluxTimeout int    `default:"30"`

	HTTPAddress string `default:":8050"`

	ElectricityPrice float64 `default:"2.5"`
	LatestLookback   string  `default:"24h"`
	MinCycleSeconds  int     `default:"60"`

	LogLevel string `default:"info"`
}

// Validate catches the combinations multiconfig cannot express.
func (c *CliConfig) Validate() error {
	if c.PumpType == "" {
		return fmt.Errorf("pumptype must be set")
	}
	if c.GatewayID == "" {
		return fmt.Errorf("gatewayid must be set")
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("mqttqos must be 0, 1 or 2")
	}
	if _, err := time.ParseDuration(c.LatestLookback); err != nil {
		return fmt.Errorf("invalid latestlookback: %w", err)
	}
	if c.MinCycleSeconds < 0 {
		return fmt.Errorf("mincycleseconds must not be negative")
	}
	return nil
}

// Lookback returns the parsed latest-value lookback window.
func (c *CliConfig) Lookback() time.Duration {
	d, err := time.ParseDuration(c.LatestLookback)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
