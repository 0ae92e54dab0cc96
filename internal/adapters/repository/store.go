// Package repository defines the telemetry store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/types"
)

// UpsertResult reports the outcome of a session upsert.
type UpsertResult struct {
	// Created is true when the upsert inserted a new session row.
	Created bool
	// Session is the stored row after the upsert, with immutable
	// identity fields preserved from the original insert.
	Session model.SessionRecord
}

// ProgressRecord tracks a subject's completion state for one build.
// The build version is deliberately absent from the key: progress
// follows the build across version bumps.
type ProgressRecord struct {
	ID          string              `json:"id"`
	SubjectID   string              `json:"subjectId"`
	Build       model.BuildIdentity `json:"build"`
	Progress    int                 `json:"progress"`
	CompletedAt time.Time           `json:"completedAt,omitzero"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// AssignmentRecord represents training assigned to a subject.
type AssignmentRecord struct {
	ID          string              `json:"id"`
	SubjectID   string              `json:"subjectId"`
	Build       model.BuildIdentity `json:"build"`
	Completed   bool                `json:"completed"`
	CompletedAt time.Time           `json:"completedAt,omitzero"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// Store provides read/write access to telemetry state.
type Store interface {
	// UpsertSession inserts the session or updates the mutable fields of
	// the existing row with the same session id. Identity fields and a
	// terminal completion status are never regressed by the update.
	UpsertSession(ctx context.Context, rec model.SessionRecord) (UpsertResult, error)

	// GetSession returns the session with the given id.
	// Returns ErrNotFound if the session is unknown.
	GetSession(ctx context.Context, sessionID string) (model.SessionRecord, error)

	// ListSessions returns sessions matching the filter, newest first,
	// paginated by the filter's page and limit.
	ListSessions(ctx context.Context, f types.SessionFilter) ([]model.SessionRecord, error)

	// CountSessions returns the number of sessions matching the filter,
	// ignoring pagination.
	CountSessions(ctx context.Context, f types.SessionFilter) (int, error)

	// UpsertProgress inserts or refreshes the progress row keyed by
	// subject and build identity. Progress never decreases and the
	// completion timestamp only moves forward.
	UpsertProgress(ctx context.Context, rec ProgressRecord) error

	// GetProgress returns the progress row for a subject and build.
	// Returns ErrNotFound when no progress has been recorded.
	GetProgress(ctx context.Context, subjectID string, build model.BuildIdentity) (ProgressRecord, error)

	// CreateAssignment records a training assignment for a subject.
	CreateAssignment(ctx context.Context, rec AssignmentRecord) error

	// CompleteAssignment marks the matching assignment completed.
	// Returns ErrNotFound when no assignment matches.
	CompleteAssignment(ctx context.Context, subjectID string, build model.BuildIdentity, at time.Time) error

	// TagSession attaches a tag to a session for list filtering.
	TagSession(ctx context.Context, sessionID, tagID string) error

	// Totals returns the number of stored sessions and progress rows.
	Totals(ctx context.Context) (sessions, progress int, err error)

	// Transact runs fn against a store bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Transact(ctx context.Context, fn func(Store) error) error

	// Close releases the underlying database.
	Close() error
}
