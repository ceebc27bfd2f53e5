package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/heatmon/heatmon/pkg/analytics"
	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/heatmon/heatmon/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// ranges the dashboard offers. Keys are what the `range` query parameter
// accepts.
var queryRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

const defaultRange = "24h"

// Server exposes the analytics engine and pump metadata over HTTP for the
// dashboard.
type Server struct {
	engine  *analytics.Engine
	cat     *catalog.Catalog
	metrics *metrics.Metrics
	price   float64
	httpSrv *http.Server
}

func New(address string, engine *analytics.Engine, cat *catalog.Catalog, m *metrics.Metrics, electricityPrice float64) *Server {
	s := &Server{
		engine:  engine,
		cat:     cat,
		metrics: m,
		price:   electricityPrice,
	}
	s.httpSrv = &http.Server{
		Addr:         address,
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/cop", s.handleCOP).Methods("GET")
	r.HandleFunc("/api/runtime", s.handleRuntime).Methods("GET")
	r.HandleFunc("/api/costs", s.handleCosts).Methods("GET")
	r.HandleFunc("/api/hotwater", s.handleHotWater).Methods("GET")
	r.HandleFunc("/api/latest", s.handleLatest).Methods("GET")
	r.HandleFunc("/api/minmax", s.handleMinMax).Methods("GET")
	r.HandleFunc("/api/alarm", s.handleAlarm).Methods("GET")
	r.HandleFunc("/api/capabilities", s.handleCapabilities).Methods("GET")
	r.HandleFunc("/api/registers", s.handleRegisters).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET"}),
	)(handlers.RecoveryHandler()(r))
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("address", s.httpSrv.Addr).Info("http server listening")
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCOP(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeFromRequest(w, r)
	if !ok {
		return
	}
	result, err := s.engine.CalculateCOP(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeFromRequest(w, r)
	if !ok {
		return
	}
	stats, err := s.engine.CalculateRuntimeStats(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeFromRequest(w, r)
	if !ok {
		return
	}
	summary, err := s.engine.CalculateEnergyCosts(r.Context(), start, end, s.price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHotWater(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeFromRequest(w, r)
	if !ok {
		return
	}
	stats, err := s.engine.AnalyzeHotWaterCycles(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	values, err := s.engine.GetLatestValues(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleMinMax(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeFromRequest(w, r)
	if !ok {
		return
	}
	values, err := s.engine.GetMinMaxValues(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.GetAlarmStatus(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pumpType":     s.cat.PumpType(),
		"brand":        s.cat.Brand(),
		"model":        s.cat.Model(),
		"capabilities": s.cat.Capabilities(),
	})
}

func (s *Server) handleRegisters(w http.ResponseWriter, _ *http.Request) {
	type register struct {
		RegisterID  string `json:"registerId"`
		LogicalName string `json:"logicalName"`
		Type        string `json:"type"`
		Unit        string `json:"unit,omitempty"`
		Description string `json:"description,omitempty"`
	}
	descriptors := s.cat.All()
	out := make([]register, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, register{
			RegisterID:  d.RegisterID,
			LogicalName: d.LogicalName,
			Type:        string(d.Class),
			Unit:        d.Unit,
			Description: d.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// rangeFromRequest resolves the `range` query parameter into [now-d, now].
// An unknown value is a client error; absence means the default.
func rangeFromRequest(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	name := r.URL.Query().Get("range")
	if name == "" {
		name = defaultRange
	}
	d, ok := queryRanges[name]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown range " + name})
		return time.Time{}, time.Time{}, false
	}
	end := time.Now().UTC()
	return end.Add(-d), end, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("error encoding response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	logrus.WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
