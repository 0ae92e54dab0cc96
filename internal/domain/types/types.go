// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
)

// Default paging bounds applied when the caller omits them.
const (
	DefaultPage  = 1
	DefaultLimit = 20
)

// SessionFilter narrows a session query. Zero-valued fields are ignored.
// Filtering happens in the query layer; the aggregation engine always receives
// an already-filtered set.
type SessionFilter struct {
	SubjectID        string                 `json:"subjectId,omitempty"`
	BuildName        string                 `json:"buildName,omitempty"`
	BuildType        string                 `json:"buildType,omitempty"`
	BuildVersion     string                 `json:"buildVersion,omitempty"`
	ContainerID      string                 `json:"containerId,omitempty"`
	TagID            string                 `json:"tagId,omitempty"`
	// TenantID scopes the query to one tenant's organization containers.
	// It is derived from the caller's token, never from query parameters.
	TenantID         string                 `json:"-"`
	CompletionStatus model.CompletionStatus `json:"completionStatus,omitempty"`
	From             time.Time              `json:"from,omitzero"`
	To               time.Time              `json:"to,omitzero"`
	Page             int                    `json:"page,omitempty"`
	Limit            int                    `json:"limit,omitempty"`
}

// Normalize clamps paging to sane bounds. maxLimit <= 0 means no cap.
func (f SessionFilter) Normalize(maxLimit int) SessionFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if maxLimit > 0 && f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

// Pagination describes one page of a paginated result.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}
