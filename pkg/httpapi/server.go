// Package httpapi is the inbound HTTP surface: the conversation endpoint,
// health, and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkin/pkg/logx"
	"checkin/pkg/metrics"
	"checkin/pkg/orch"
)

// RunRequest is the conversation turn request body.
type RunRequest struct {
	Goal      string `json:"goal"`
	SessionID string `json:"sessionId,omitempty"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Server handles the inbound API.
type Server struct {
	orch   *orch.Orchestrator
	logger *logx.Logger
}

// New creates the API server over the orchestrator.
func New(o *orch.Orchestrator) *Server {
	return &Server{orch: o, logger: logx.NewLogger("httpapi")}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/main/run", s.handleRun)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "/main/run", http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Goal == "" {
		s.writeError(w, "/main/run", http.StatusBadRequest, "goal is required")
		return
	}

	resp, err := s.orch.Run(r.Context(), req.Goal, req.SessionID)
	if err != nil {
		s.logger.Error("turn failed: %v", err)
		s.writeError(w, "/main/run", http.StatusInternalServerError, "internal error handling the turn")
		return
	}

	metrics.HTTPRequests.WithLabelValues("/main/run", "200").Inc()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	metrics.HTTPRequests.WithLabelValues("/healthz", "200").Inc()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, route string, code int, msg string) {
	metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	s.writeJSON(w, code, errorResponse{Status: "FAILED", Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response: %v", err)
	}
}
