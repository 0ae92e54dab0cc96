package ingest

import (
	"context"
	"fmt"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/adapters/repository"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/auth"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/progress"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/logger"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/metrics"
)

// Rejection reasons reported to metrics.
const (
	reasonValidation = "validation"
	reasonAuth       = "auth"
	reasonContainer  = "container"
	reasonStore      = "store"
)

// Result reports the outcome of one envelope ingestion.
type Result struct {
	SessionID string                 `json:"sessionId"`
	Created   bool                   `json:"created"`
	Status    model.CompletionStatus `json:"completionStatus"`
}

// Gateway validates envelopes, resolves their identity and persists them
// through an atomic upsert. Completions are projected onto progress in
// the same transaction as the session write.
type Gateway struct {
	store     repository.Store
	verifier  auth.Verifier
	projector *progress.Projector
	log       logger.Logger
}

// NewGateway wires an ingestion gateway.
func NewGateway(store repository.Store, verifier auth.Verifier, projector *progress.Projector, log logger.Logger) *Gateway {
	return &Gateway{
		store:     store,
		verifier:  verifier,
		projector: projector,
		log:       log.Named("ingest"),
	}
}

// Ingest processes one envelope end to end. Distinct session ids are
// fully independent; retried envelopes for the same session id collapse
// into one record through the store's upsert.
func (g *Gateway) Ingest(ctx context.Context, env Envelope) (Result, error) {
	if err := env.Validate(); err != nil {
		metrics.RecordEnvelopeRejected(reasonValidation)
		return Result{}, err
	}

	subjectID, err := g.resolveSubject(ctx, env)
	if err != nil {
		return Result{}, err
	}

	rec := env.toRecord(subjectID)

	var result repository.UpsertResult
	err = g.store.Transact(ctx, func(tx repository.Store) error {
		res, err := tx.UpsertSession(ctx, rec)
		if err != nil {
			return err
		}
		result = res

		if res.Session.CompletionStatus != model.StatusCompleted {
			return nil
		}
		completedAt := res.Session.EndTime
		if completedAt.IsZero() {
			completedAt = res.Session.UpdatedAt
		}
		return g.projector.OnSessionCompleted(ctx, tx, res.Session.SubjectID, res.Session.Build, completedAt)
	})
	if err != nil {
		metrics.RecordEnvelopeRejected(reasonStore)
		g.log.Error(ctx, "envelope persistence failed",
			logger.String("sessionId", env.SessionID),
			logger.Error(err),
		)
		return Result{}, fmt.Errorf("persist session %s: %w", env.SessionID, err)
	}

	metrics.RecordEnvelopeIngested()
	if result.Created {
		metrics.RecordSessionCreated()
	} else {
		metrics.RecordSessionUpdated()
	}
	g.log.Debug(ctx, "envelope ingested",
		logger.String("sessionId", result.Session.SessionID),
		logger.String("status", string(result.Session.CompletionStatus)),
		logger.Bool("created", result.Created),
	)

	return Result{
		SessionID: result.Session.SessionID,
		Created:   result.Created,
		Status:    result.Session.CompletionStatus,
	}, nil
}

// resolveSubject attributes the envelope to a subject. Token-less
// envelopes are allowed only for personal containers, whose name carries
// the owning subject.
func (g *Gateway) resolveSubject(ctx context.Context, env Envelope) (string, error) {
	if !auth.KnownContainer(env.ContainerID) {
		metrics.RecordEnvelopeRejected(reasonContainer)
		return "", fmt.Errorf("%w: %s", ErrUnknownContainer, env.ContainerID)
	}

	if env.AuthToken == "" {
		subject, ok := auth.SubjectFromPersonalContainer(env.ContainerID)
		if !ok {
			metrics.RecordEnvelopeRejected(reasonAuth)
			return "", fmt.Errorf("container %s: %w", env.ContainerID, auth.ErrMissingToken)
		}
		return subject, nil
	}

	identity, err := g.verifier.Verify(ctx, env.AuthToken)
	if err != nil {
		metrics.RecordEnvelopeRejected(reasonAuth)
		return "", err
	}
	if tenant, ok := auth.ContainerTenant(env.ContainerID); ok && identity.TenantID != tenant {
		metrics.RecordEnvelopeRejected(reasonAuth)
		return "", fmt.Errorf("container %s: %w", env.ContainerID, auth.ErrTenantMismatch)
	}
	return identity.SubjectID, nil
}

// toRecord maps a validated envelope onto the persisted session shape.
// The first-attempt flag on questions is recomputed from the raw answers
// so a client cannot report a flag inconsistent with its own data, and
// text interactions are pinned to the ungraded score.
func (e Envelope) toRecord(subjectID string) model.SessionRecord {
	status, _ := model.ParseCompletionStatus(e.CompletionStatus)

	interactions := make([]model.InteractionRecord, len(e.Interactions))
	copy(interactions, e.Interactions)
	for i := range interactions {
		if q := interactions[i].Question; q != nil {
			normalized := *q
			normalized.FirstAttemptCorrect = q.ComputeFirstAttemptCorrect()
			interactions[i].Question = &normalized
		}
		if t := interactions[i].Text; t != nil {
			normalized := *t
			normalized.FinalScore = 100
			interactions[i].Text = &normalized
		}
	}

	summary := computeSummary(interactions)
	if e.Summary != nil {
		summary = *e.Summary
	}

	return model.SessionRecord{
		SessionID:  e.SessionID,
		TrainingID: e.TrainingID,
		SubjectID:  subjectID,
		Build: model.BuildIdentity{
			Name:        e.BuildName,
			Type:        e.BuildType,
			Version:     e.BuildVersion,
			ContainerID: e.ContainerID,
		},
		StartTime:        e.StartTime,
		EndTime:          e.EndTime,
		TotalDuration:    e.TotalDuration,
		CompletionStatus: status,
		Interactions:     interactions,
		Summary:          summary,
	}
}

// computeSummary derives session counters when the client omits them.
func computeSummary(interactions []model.InteractionRecord) model.SessionSummary {
	var s model.SessionSummary
	var totalDuration float64

	for _, interaction := range interactions {
		s.TotalInteractions++
		if interaction.Success {
			s.SuccessfulInteractions++
		} else {
			s.FailedInteractions++
		}

		attempts := interaction.Attempts
		if q := interaction.Question; q != nil && attempts == 0 {
			attempts = len(q.UserAnswers)
		}
		if attempts == 0 {
			attempts = 1
		}
		s.TotalAttempts += attempts
		if interaction.Success {
			s.TotalFailedAttempts += attempts - 1
		} else {
			s.TotalFailedAttempts += attempts
		}

		totalDuration += interaction.EffectiveDuration()
	}

	if s.TotalInteractions > 0 {
		s.SuccessRate = float64(s.SuccessfulInteractions) / float64(s.TotalInteractions) * 100
		s.AverageTimePerInteraction = totalDuration / float64(s.TotalInteractions)
	}
	return s
}
