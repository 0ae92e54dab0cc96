// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/adapters/repository"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/auth"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/ingest"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingest validates and persists one telemetry envelope.
	Ingest(ctx context.Context, env ingest.Envelope) (ingest.Result, error)

	// ResolveTenant maps a bearer token to the tenant scope for read
	// queries. An empty token means an unscoped query.
	ResolveTenant(ctx context.Context, token string) (string, error)

	// Read operations expose session data.
	ListSessions(ctx context.Context, f types.SessionFilter, language string) (*SessionPage, error)
	BuildStats(ctx context.Context, f types.SessionFilter, language string) (*BuildStatsResult, error)
	Export(ctx context.Context, f types.SessionFilter, w io.Writer) error
}

// Read shapes returned by session queries.
type (
	SessionPage      = types.SessionPage
	BuildStatsResult = types.BuildStatsResult
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	telemetryHandler  *TelemetryHandler
	sessionsHandler   *SessionsHandler
	buildStatsHandler *BuildStatsHandler
	exportHandler     *ExportHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		telemetryHandler:  NewTelemetryHandler(deps),
		sessionsHandler:   NewSessionsHandler(deps),
		buildStatsHandler: NewBuildStatsHandler(deps),
		exportHandler:     NewExportHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/telemetry", MetricsMiddleware(s.telemetryHandler.HandlePostTelemetry, "telemetry"))
	mux.HandleFunc("/api/sessions/export", MetricsMiddleware(s.exportHandler.HandleExport, "export"))
	mux.HandleFunc("/api/sessions", MetricsMiddleware(s.sessionsHandler.HandleListSessions, "sessions"))
	mux.HandleFunc("/api/builds/stats", MetricsMiddleware(s.buildStatsHandler.HandleBuildStats, "build_stats"))
}

type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps a domain error onto the wire contract: 400 for
// validation with one detail per field, 401 for auth, 404 for unknown
// container/session, 500 otherwise without leaking storage internals.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Details: verr.Fields,
		})
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTenantMismatch):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, ingest.ErrUnknownContainer),
		errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
