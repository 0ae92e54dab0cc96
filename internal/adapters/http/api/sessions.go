// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/types"
)

// SessionDependencies defines the interface for session queries.
type SessionDependencies interface {
	ResolveTenant(ctx context.Context, token string) (string, error)
	ListSessions(ctx context.Context, f types.SessionFilter, language string) (*SessionPage, error)
}

// SessionsHandler handles session list requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleListSessions handles GET /api/sessions requests.
func (h *SessionsHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	filter, language, err := parseSessionQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	filter.TenantID, err = h.deps.ResolveTenant(r.Context(), bearerToken(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page, err := h.deps.ListSessions(r.Context(), filter, language)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ExportDependencies defines the interface for CSV export.
type ExportDependencies interface {
	ResolveTenant(ctx context.Context, token string) (string, error)
	Export(ctx context.Context, f types.SessionFilter, w io.Writer) error
}

// ExportHandler streams session sets as CSV downloads.
type ExportHandler struct {
	deps ExportDependencies
}

// NewExportHandler creates a new export handler.
func NewExportHandler(deps ExportDependencies) *ExportHandler {
	return &ExportHandler{deps: deps}
}

// HandleExport handles GET /api/sessions/export requests.
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	filter, _, err := parseSessionQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	filter.TenantID, err = h.deps.ResolveTenant(r.Context(), bearerToken(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sessions.csv"`)
	if err := h.deps.Export(r.Context(), filter, w); err != nil {
		// Headers are already out; the truncated body is the best signal left.
		return
	}
}

// parseSessionQuery maps query parameters onto a session filter. Unknown
// parameters are ignored; malformed ones fail the request.
func parseSessionQuery(q url.Values) (types.SessionFilter, string, error) {
	f := types.SessionFilter{
		SubjectID:    q.Get("subjectId"),
		BuildName:    q.Get("buildName"),
		BuildType:    q.Get("buildType"),
		BuildVersion: q.Get("buildVersion"),
		ContainerID:  q.Get("containerId"),
		TagID:        q.Get("tagId"),
	}

	if raw := q.Get("completionStatus"); raw != "" {
		status, err := model.ParseCompletionStatus(raw)
		if err != nil {
			return f, "", err
		}
		f.CompletionStatus = status
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, "", ErrBadRequest
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, "", ErrBadRequest
		}
		f.To = t
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, "", ErrBadRequest
		}
		f.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, "", ErrBadRequest
		}
		f.Limit = n
	}

	return f, q.Get("language"), nil
}
