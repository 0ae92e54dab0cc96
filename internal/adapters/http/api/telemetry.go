// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/ingest"
)

// TelemetryDependencies defines the interface for envelope ingestion.
type TelemetryDependencies interface {
	Ingest(ctx context.Context, env ingest.Envelope) (ingest.Result, error)
}

// TelemetryHandler handles telemetry envelope submissions.
type TelemetryHandler struct {
	deps TelemetryDependencies
}

// NewTelemetryHandler creates a new telemetry handler.
func NewTelemetryHandler(deps TelemetryDependencies) *TelemetryHandler {
	return &TelemetryHandler{deps: deps}
}

type ingestResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Created   bool   `json:"created"`
	Status    string `json:"completionStatus"`
}

// HandlePostTelemetry handles POST /api/telemetry requests. The bearer
// token may ride in the Authorization header instead of the envelope.
func (h *TelemetryHandler) HandlePostTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var env ingest.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed json body"})
		return
	}
	if env.AuthToken == "" {
		env.AuthToken = bearerToken(r)
	}

	result, err := h.deps.Ingest(r.Context(), env)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ingestResponse{
		Success:   true,
		SessionID: result.SessionID,
		Created:   result.Created,
		Status:    string(result.Status),
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
