// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/types"
)

// BuildStatsDependencies defines the interface for build drill-down
// statistics.
type BuildStatsDependencies interface {
	ResolveTenant(ctx context.Context, token string) (string, error)
	BuildStats(ctx context.Context, f types.SessionFilter, language string) (*BuildStatsResult, error)
}

// BuildStatsHandler handles per-build statistics requests.
type BuildStatsHandler struct {
	deps BuildStatsDependencies
}

// NewBuildStatsHandler creates a new build stats handler.
func NewBuildStatsHandler(deps BuildStatsDependencies) *BuildStatsHandler {
	return &BuildStatsHandler{deps: deps}
}

// HandleBuildStats handles GET /api/builds/stats requests. buildName and
// buildType are required; buildVersion narrows to one version.
func (h *BuildStatsHandler) HandleBuildStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	filter, language, err := parseSessionQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if filter.BuildName == "" || filter.BuildType == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "validation failed",
			Details: map[string]string{
				"buildName": "required",
				"buildType": "required",
			},
		})
		return
	}
	filter.TenantID, err = h.deps.ResolveTenant(r.Context(), bearerToken(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.deps.BuildStats(r.Context(), filter, language)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
