package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heatmon/heatmon/pkg/analytics"
	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/heatmon/heatmon/pkg/metrics"
	"github.com/heatmon/heatmon/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, store *storage.Memory) *httptest.Server {
	t.Helper()
	cat, err := catalog.Load("thermia_diplomat", "")
	require.NoError(t, err)
	engine := analytics.New(store, cat, analytics.DefaultConfig())
	s := New(":0", engine, cat, metrics.New(prometheus.NewRegistry()), 2.5)
	ts := httptest.NewServer(s.router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts := testServer(t, storage.NewMemory())

	var body map[string]string
	resp := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCOPEndpoint(t *testing.T) {
	store := storage.NewMemory()
	now := time.Now().UTC()
	require.NoError(t, store.WritePoint(context.Background(), storage.Point{
		LogicalName: "compressor_status", Value: 1, Time: now.Add(-time.Hour),
	}))
	require.NoError(t, store.WritePoint(context.Background(), storage.Point{
		LogicalName: "radiator_forward", Value: 40.0, Time: now.Add(-30 * time.Minute),
	}))
	ts := testServer(t, store)

	var result analytics.COPResult
	resp := getJSON(t, ts.URL+"/api/cop?range=6h", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, result.NoData)
	require.Len(t, result.Samples, 1)
	assert.Equal(t, 5.41, result.Mean)
}

func TestCOPEndpointNoData(t *testing.T) {
	ts := testServer(t, storage.NewMemory())

	var result analytics.COPResult
	resp := getJSON(t, ts.URL+"/api/cop", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, result.NoData)
	assert.Equal(t, 3.0, result.Mean)
}

func TestUnknownRangeIsClientError(t *testing.T) {
	ts := testServer(t, storage.NewMemory())

	var body map[string]string
	resp := getJSON(t, ts.URL+"/api/runtime?range=5y", &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "unknown range")
}

func TestLatestEndpoint(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.WritePoint(context.Background(), storage.Point{
		LogicalName: "outdoor_temp", Value: -3.5, Time: time.Now().UTC().Add(-time.Hour),
	}))
	ts := testServer(t, store)

	var values map[string]analytics.Value
	resp := getJSON(t, ts.URL+"/api/latest", &values)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, values, "outdoor_temp")
	assert.Equal(t, -3.5, values["outdoor_temp"].Value)
}

func TestCapabilitiesEndpoint(t *testing.T) {
	ts := testServer(t, storage.NewMemory())

	var body struct {
		PumpType     string               `json:"pumpType"`
		Brand        string               `json:"brand"`
		Capabilities catalog.Capabilities `json:"capabilities"`
	}
	resp := getJSON(t, ts.URL+"/api/capabilities", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "thermia_diplomat", body.PumpType)
	assert.Equal(t, "Thermia", body.Brand)
	assert.True(t, body.Capabilities.HasPowerMeasurement)
	assert.False(t, body.Capabilities.HasHeatCarrierSensors)
}

func TestAlarmEndpoint(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.WritePoint(context.Background(), storage.Point{
		LogicalName: "alarm_status", Value: 4, Time: time.Now().UTC().Add(-time.Hour),
	}))
	ts := testServer(t, store)

	var status analytics.AlarmStatus
	resp := getJSON(t, ts.URL+"/api/alarm", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, status.Active)
	assert.Equal(t, 4, status.Code)
	assert.Equal(t, "Brine flow low", status.Description)
}

func TestRegistersEndpoint(t *testing.T) {
	ts := testServer(t, storage.NewMemory())

	var regs []map[string]interface{}
	resp := getJSON(t, ts.URL+"/api/registers", &regs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, regs)
	assert.Equal(t, "0001", regs[0]["registerId"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := testServer(t, storage.NewMemory())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
