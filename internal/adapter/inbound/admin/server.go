// Package admin exposes the operational HTTP surface: health, metrics
// summaries, Prometheus scraping, and manual resync triggering.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/service"
)

// Server is the admin HTTP listener.
type Server struct {
	metrics  *service.MetricsService
	recovery *service.RecoveryManager
	logger   *slog.Logger
	httpSrv  *http.Server
}

// New creates the admin server bound to addr.
func New(
	addr string,
	metrics *service.MetricsService,
	recovery *service.RecoveryManager,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	s := &Server{
		metrics:  metrics,
		recovery: recovery,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metrics/summary", s.handleMetricsSummary)
	mux.HandleFunc("GET /metrics/recovery", s.handleRecoveryHealth)
	mux.HandleFunc("POST /resync", s.handleResync)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("admin server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server failed", "error", err)
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.metrics.SystemHealthStatus()
	code := http.StatusOK
	if status == service.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":             status,
		"recoveryInProgress": s.recovery.IsRecoveryInProgress(),
	})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.MetricsSummary())
}

func (s *Server) handleRecoveryHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.SyncRecoveryHealthStatus())
}

// handleResync lets an operator force a full resync. 409 when an episode is
// already in flight, 503 when recovery is disabled by configuration.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
		body.Reason = "manual"
	}

	if !s.recovery.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"started": false,
			"error":   "sync recovery is disabled",
		})
		return
	}
	if s.recovery.IsRecoveryInProgress() {
		writeJSON(w, http.StatusConflict, map[string]any{
			"started": false,
			"error":   "recovery already in progress",
		})
		return
	}

	s.logger.Info("manual resync requested", "reason", body.Reason)
	started := s.recovery.TriggerResync(r.Context(), body.Reason)
	code := http.StatusOK
	if !started {
		// Lost the guard race to a concurrent trigger, or the episode failed.
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]any{"started": started, "reason": body.Reason})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
