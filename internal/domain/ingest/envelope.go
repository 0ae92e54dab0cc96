// Package ingest validates and idempotently persists session telemetry
// envelopes.
package ingest

import (
	"fmt"
	"time"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
)

// Envelope is one session-state transmission from a simulation client.
// A session may be transmitted several times as it progresses; every
// transmission carries the full session state.
type Envelope struct {
	SessionID        string                    `json:"sessionId"`
	TrainingID       string                    `json:"trainingId,omitempty"`
	BuildName        string                    `json:"buildName"`
	BuildType        string                    `json:"buildType"`
	BuildVersion     string                    `json:"buildVersion,omitempty"`
	ContainerID      string                    `json:"containerId"`
	StartTime        time.Time                 `json:"startTime"`
	EndTime          time.Time                 `json:"endTime,omitzero"`
	TotalDuration    float64                   `json:"totalDuration"`
	CompletionStatus string                    `json:"completionStatus"`
	Interactions     []model.InteractionRecord `json:"interactions"`
	Summary          *model.SessionSummary     `json:"summary,omitempty"`
	AuthToken        string                    `json:"authToken,omitempty"`
}

// Validate checks required fields, enum values and the interaction sum
// type, collecting one diagnostic per invalid field. Downstream code
// relies on a validated envelope never carrying a type/payload mismatch.
func (e Envelope) Validate() error {
	var v validationErrors

	if e.SessionID == "" {
		v.add("sessionId", "required")
	}
	if e.BuildName == "" {
		v.add("buildName", "required")
	}
	if e.BuildType == "" {
		v.add("buildType", "required")
	}
	if e.ContainerID == "" {
		v.add("containerId", "required")
	}
	if e.StartTime.IsZero() {
		v.add("startTime", "required")
	}
	if e.TotalDuration < 0 {
		v.add("totalDuration", "must not be negative")
	}
	if _, err := model.ParseCompletionStatus(e.CompletionStatus); err != nil {
		v.add("completionStatus", err.Error())
	}

	for i, interaction := range e.Interactions {
		validateInteraction(&v, i, interaction)
	}

	return v.err()
}

func validateInteraction(v *validationErrors, i int, interaction model.InteractionRecord) {
	field := func(name string) string {
		return fmt.Sprintf("interactions[%d].%s", i, name)
	}

	if interaction.InteractionID == "" {
		v.add(field("interactionId"), "required")
	}
	if interaction.ObjectID == "" {
		v.add(field("objectId"), "required")
	}

	kind, err := model.ParseInteractionType(string(interaction.Type))
	if err != nil {
		v.add(field("type"), err.Error())
		return
	}

	payloads := 0
	if interaction.Question != nil {
		payloads++
	}
	if interaction.Procedure != nil {
		payloads++
	}
	if interaction.Text != nil {
		payloads++
	}
	if payloads > 1 {
		v.add(field("type"), "more than one variant payload present")
		return
	}

	switch kind {
	case model.TypeQuestion:
		if interaction.Question == nil {
			v.add(field("question"), "required for type question")
			return
		}
		if interaction.Question.QuestionKey == "" {
			v.add(field("question.questionKey"), "required")
		}
		for j, attempt := range interaction.Question.UserAnswers {
			for _, idx := range attempt {
				if idx < 0 {
					v.add(field(fmt.Sprintf("question.userAnswers[%d]", j)), "option index must not be negative")
					break
				}
			}
		}
	case model.TypeProcedure:
		if interaction.Procedure == nil {
			v.add(field("procedure"), "required for type procedure")
			return
		}
		if interaction.Procedure.ProcedureKey == "" {
			v.add(field("procedure.procedureKey"), "required")
		}
	case model.TypeText:
		if interaction.Text == nil {
			v.add(field("text"), "required for type text")
			return
		}
		if interaction.Text.ContentKey == "" {
			v.add(field("text.contentKey"), "required")
		}
	}
}
