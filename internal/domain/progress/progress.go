// Package progress projects completed sessions onto per-subject
// training progress.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/adapters/repository"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/logger"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/metrics"
)

// CompletedProgress is the progress value recorded when a session
// reaches COMPLETED. Completion is binary for a build.
const CompletedProgress = 100

// Projector turns session completions into progress rows and assignment
// completions. It is safe to invoke more than once for the same session.
type Projector struct {
	log logger.Logger
}

// NewProjector returns a projector logging through log.
func NewProjector(log logger.Logger) *Projector {
	return &Projector{log: log}
}

// OnSessionCompleted upserts the subject's progress for the session's
// build and marks any matching assignment completed. The store is
// expected to be transaction-scoped by the caller so the projection
// commits atomically with the session write.
//
// A missing assignment is expected for self-serve training and is
// logged at debug level, never surfaced as a failure.
func (p *Projector) OnSessionCompleted(ctx context.Context, store repository.Store, subjectID string, build model.BuildIdentity, completedAt time.Time) error {
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	rec := repository.ProgressRecord{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Build:       build,
		Progress:    CompletedProgress,
		CompletedAt: completedAt,
	}
	if err := store.UpsertProgress(ctx, rec); err != nil {
		return fmt.Errorf("project completion for %s: %w", build.ProgressKey(), err)
	}
	metrics.RecordCompletionProjected()

	if err := store.CompleteAssignment(ctx, subjectID, build, completedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.log.Debug(ctx, "no assignment to complete",
				logger.String("subjectId", subjectID),
				logger.String("progressKey", build.ProgressKey()),
			)
			return nil
		}
		p.log.Warn(ctx, "assignment completion failed",
			logger.String("subjectId", subjectID),
			logger.String("progressKey", build.ProgressKey()),
			logger.Error(err),
		)
	}
	return nil
}
