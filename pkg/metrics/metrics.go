// Package metrics exposes internal collector counters over Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	PointsIngested   prometheus.Counter
	UnknownRegisters prometheus.Counter
	ValuesRejected   *prometheus.CounterVec
	StorageErrors    prometheus.Counter
	LastIngestUnix   prometheus.Gauge
	AlarmActive      prometheus.Gauge

	handler http.Handler
}

func New(reg prometheus.Registerer) *Metrics {
	handler := promhttp.Handler()
	if g, ok := reg.(prometheus.Gatherer); ok {
		handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	factory := promauto.With(reg)
	return &Metrics{
		handler: handler,
		PointsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "heatmon_points_ingested_total",
			Help: "Number of metric points normalized and written to storage",
		}),
		UnknownRegisters: factory.NewCounter(prometheus.CounterOpts{
			Name: "heatmon_unknown_registers_total",
			Help: "Number of messages dropped because the register id is not in the active profile",
		}),
		ValuesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heatmon_values_rejected_total",
			Help: "Number of raw values rejected during normalization",
		}, []string{"reason"}),
		StorageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "heatmon_storage_errors_total",
			Help: "Number of failed storage writes",
		}),
		LastIngestUnix: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heatmon_last_ingest_timestamp_seconds",
			Help: "Unix timestamp of the most recently ingested point",
		}),
		AlarmActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heatmon_alarm_active",
			Help: "Whether the pump currently reports a nonzero alarm code",
		}),
	}
}

// Handler serves the registry the counters live in.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}
