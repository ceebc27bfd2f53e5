package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/heatmon/heatmon/pkg/analytics"
	"github.com/heatmon/heatmon/pkg/api/v1/config"
	"github.com/heatmon/heatmon/pkg/app"
	"github.com/heatmon/heatmon/pkg/transport"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	brokerAddress = "127.0.0.1:11883"
	httpAddress   = "127.0.0.1:18050"
	gatewayID     = "cd4dee258efa"
)

// Full collector path: embedded broker, a paho publisher standing in for the
// gateway, in-memory storage and the dashboard API on top.
func TestCollectAndServe(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)

	cfg := &config.CliConfig{
		PumpType:         "thermia_diplomat",
		GatewayID:        gatewayID,
		MQTTBroker:       "tcp://" + brokerAddress,
		EmbeddedBroker:   true,
		BrokerAddress:    brokerAddress,
		HTTPAddress:      httpAddress,
		ElectricityPrice: 2.5,
		LatestLookback:   "24h",
		MinCycleSeconds:  60,
		LogLevel:         "debug",
	}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := app.New(cfg)
	require.NoError(t, a.Start(ctx))

	gateway := transport.New(transport.Config{Broker: "tcp://" + brokerAddress})
	require.NoError(t, gateway.Connect(ctx))
	defer gateway.Disconnect()

	// -5.0°C on the wire as 16-bit two's complement
	publish(t, gateway, "0001", "65531", false)
	publish(t, gateway, "0007", "48.2", false)
	publish(t, gateway, "CFAA", "1500", false)
	publish(t, gateway, "1A01", "1", true)
	publish(t, gateway, "1A20", "4", true)
	// unknown registers must be ignored, not break the pipeline
	publish(t, gateway, "BEEF", "1", false)

	var latest map[string]analytics.Value
	WaitFor(t, 5*time.Second, "latest values to arrive", func() bool {
		latest = map[string]analytics.Value{}
		if !getJSON(t, "/api/latest", &latest) {
			return false
		}
		_, ok := latest["outdoor_temp"]
		_, ok2 := latest["power_consumption"]
		return ok && ok2
	})

	assert.Equal(t, -5.0, latest["outdoor_temp"].Value)
	assert.Equal(t, 48.2, latest["hot_water_top"].Value)
	assert.Equal(t, 1500.0, latest["power_consumption"].Value)
	assert.NotContains(t, latest, "indoor_temp")

	var alarm analytics.AlarmStatus
	WaitFor(t, 5*time.Second, "alarm to become active", func() bool {
		return getJSON(t, "/api/alarm", &alarm) && alarm.Active
	})
	assert.Equal(t, 4, alarm.Code)
	assert.Equal(t, "Brine flow low", alarm.Description)

	var runtime analytics.RuntimeStats
	require.True(t, getJSON(t, "/api/runtime?range=1h", &runtime))
	assert.Equal(t, 3600.0, runtime.ElapsedSeconds)
	assert.InDelta(t, 100.0, runtime.CompressorPercent+runtime.AuxHeaterPercent+runtime.InactivePercent, 0.11)

	var costs analytics.CostSummary
	require.True(t, getJSON(t, "/api/costs?range=1h", &costs))
	assert.Equal(t, 2.5, costs.PricePerKWh)
	assert.Equal(t, 1500.0, costs.PeakPower)

	var caps struct {
		PumpType string `json:"pumpType"`
		Brand    string `json:"brand"`
	}
	require.True(t, getJSON(t, "/api/capabilities", &caps))
	assert.Equal(t, "thermia_diplomat", caps.PumpType)
	assert.Equal(t, "Thermia", caps.Brand)

	cancel()
	a.Wait()
}

func publish(t *testing.T, client *transport.Client, registerID, payload string, status bool) {
	t.Helper()
	topic := transport.RegisterTopic(gatewayID, registerID, status)
	require.NoError(t, client.Publish(topic, payload))
}

func getJSON(t *testing.T, path string, out interface{}) bool {
	t.Helper()
	resp, err := http.Get("http://" + httpAddress + path)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(out) == nil
}

func WaitFor(t *testing.T, timeout time.Duration, msg string, ok func() bool) {
	end := time.Now().Add(timeout)
	for {
		if end.Before(time.Now()) {
			t.Fatalf("timeout waiting for: %s", msg)
			return
		}
		time.Sleep(10 * time.Millisecond)
		if ok() {
			return
		}
	}
}
