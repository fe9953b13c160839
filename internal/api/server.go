// Package api exposes the fusion engine over HTTP JSON plus a WebSocket
// endpoint for live subscriptions.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/broadcast"
	"github.com/aegisstack/aegis-fusion/internal/engine"
	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/metrics"
	"github.com/aegisstack/aegis-fusion/internal/repo"
	"github.com/aegisstack/aegis-fusion/internal/services"
)

// Server wires the HTTP surface.
type Server struct {
	svc     *services.TacticalService
	hub     *broadcast.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger

	httpServer *http.Server
}

// NewServer creates the API server. hub may be nil when live subscriptions
// are disabled.
func NewServer(addr string, svc *services.TacticalService, hub *broadcast.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{svc: svc, hub: hub, metrics: m, logger: logger}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/tactical/picture", s.instrument("tactical_picture", s.handleTacticalPicture))
	mux.HandleFunc("POST /api/v1/tactical/area-safety", s.instrument("area_safety", s.handleAreaSafety))
	mux.HandleFunc("POST /api/v1/tactical/deployment", s.instrument("deployment", s.handleDeployment))
	mux.HandleFunc("GET /api/v1/tactical/patterns", s.instrument("patterns", s.handlePatterns))
	mux.HandleFunc("GET /api/v1/tactical/predictions", s.instrument("predictions", s.handlePredictions))

	mux.HandleFunc("GET /api/v1/threats/fused", s.instrument("fused_threats", s.handleFusedThreats))
	mux.HandleFunc("POST /api/v1/threats", s.instrument("report_threat", s.handleReportThreat))
	mux.HandleFunc("GET /api/v1/threats/{id}", s.instrument("get_threat", s.handleGetThreat))
	mux.HandleFunc("POST /api/v1/threats/{id}/verify", s.instrument("verify_threat", s.handleVerifyThreat))
	mux.HandleFunc("DELETE /api/v1/threats/{id}", s.instrument("delete_threat", s.handleDeleteThreat))

	mux.HandleFunc("POST /api/v1/analyze/image", s.instrument("analyze_image", s.handleAnalyzeImage))
	mux.HandleFunc("POST /api/v1/analyze/text", s.instrument("analyze_text", s.handleAnalyzeText))

	mux.HandleFunc("GET /api/v1/tracking/units", s.instrument("list_units", s.handleListUnits))
	mux.HandleFunc("POST /api/v1/tracking/units", s.instrument("register_unit", s.handleRegisterUnit))
	mux.HandleFunc("GET /api/v1/tracking/units/{id}", s.instrument("get_unit", s.handleGetUnit))
	mux.HandleFunc("PUT /api/v1/tracking/units/{id}/position", s.instrument("update_position", s.handleUpdatePosition))
	mux.HandleFunc("DELETE /api/v1/tracking/units/{id}", s.instrument("delete_unit", s.handleDeleteUnit))
	mux.HandleFunc("GET /api/v1/tracking/alerts", s.instrument("proximity_alerts", s.handleProximityAlerts))

	mux.HandleFunc("POST /api/v1/sitreps", s.instrument("create_sitrep", s.handleCreateSitrep))
	mux.HandleFunc("GET /api/v1/sitreps", s.instrument("list_sitreps", s.handleListSitreps))
	mux.HandleFunc("GET /api/v1/sitreps/{id}", s.instrument("get_sitrep", s.handleGetSitrep))
	mux.HandleFunc("DELETE /api/v1/sitreps/{id}", s.instrument("delete_sitrep", s.handleDeleteSitrep))

	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
	return mux
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	if s.logger != nil {
		s.logger.Info("api server listening", "addr", s.httpServer.Addr)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// statusRecorder captures the response code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	}
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, geo.ErrInvalidBounds),
		errors.Is(err, engine.ErrInvalidDetectedAt):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
