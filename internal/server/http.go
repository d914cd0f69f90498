package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *PulseServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/metrics/aggregated", s.handleAggregatedMetrics)
	mux.HandleFunc("GET /v1/alerts/active", s.handleActiveAlerts)
	mux.HandleFunc("POST /v1/alerts/{id}/acknowledge", s.handleAcknowledgeAlert)
	mux.HandleFunc("GET /v1/alerts/statistics", s.handleAlertStatistics)
	mux.HandleFunc("GET /v1/consumer/stats", s.handleConsumerStats)
	mux.HandleFunc("GET /v1/scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return mux
}

// handleHealth handles GET /v1/health.
func (s *PulseServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAggregatedMetrics handles GET /v1/metrics/aggregated?days=N.
func (s *PulseServer) handleAggregatedMetrics(w http.ResponseWriter, r *http.Request) {
	days, ok := queryDays(w, r, 0)
	if !ok {
		return
	}
	metrics, err := s.metrics.GetAggregatedMetrics(r.Context(), days)
	if err != nil {
		s.log.Error("aggregated metrics query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load aggregated metrics")
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// handleActiveAlerts handles GET /v1/alerts/active.
func (s *PulseServer) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.GetActiveAlerts(r.Context())
	if err != nil {
		s.log.Error("active alerts query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load active alerts")
		return
	}
	if alerts == nil {
		alerts = []*model.AlertInstance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// handleAcknowledgeAlert handles POST /v1/alerts/{id}/acknowledge.
func (s *PulseServer) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "alert id is required")
		return
	}
	if err := s.alerts.AcknowledgeAlert(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.log.Error("alert acknowledgement failed", "alert", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "acknowledged"})
}

// handleAlertStatistics handles GET /v1/alerts/statistics?days=N.
func (s *PulseServer) handleAlertStatistics(w http.ResponseWriter, r *http.Request) {
	days, ok := queryDays(w, r, 7)
	if !ok {
		return
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := s.alerts.GetAlertStatistics(r.Context(), since)
	if err != nil {
		s.log.Error("alert statistics query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load alert statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleConsumerStats handles GET /v1/consumer/stats.
func (s *PulseServer) handleConsumerStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.consumer.Stats())
}

// handleSchedulerStatus handles GET /v1/scheduler/status.
func (s *PulseServer) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

// queryDays parses an optional non-negative days query parameter.
func queryDays(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	q := r.URL.Query().Get("days")
	if q == "" {
		return fallback, true
	}
	days, err := strconv.Atoi(q)
	if err != nil || days < 0 {
		writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
		return 0, false
	}
	return days, true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
