// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// CompletionStatus is the lifecycle state of a training session.
type CompletionStatus string

// Session lifecycle states. IN_PROGRESS is the implicit initial state; the
// other three are terminal from the pipeline's perspective.
const (
	StatusInProgress CompletionStatus = "IN_PROGRESS"
	StatusCompleted  CompletionStatus = "COMPLETED"
	StatusAbandoned  CompletionStatus = "ABANDONED"
	StatusFailed     CompletionStatus = "FAILED"
)

// ParseCompletionStatus normalizes a client-sent status string. Accepts any
// case and an empty string, which maps to IN_PROGRESS.
func ParseCompletionStatus(s string) (CompletionStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "IN_PROGRESS":
		return StatusInProgress, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "ABANDONED":
		return StatusAbandoned, nil
	case "FAILED":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown completion status %q", s)
	}
}

// Terminal reports whether the status is final for this pipeline.
func (s CompletionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned || s == StatusFailed
}

// InteractionType is the discriminant of the interaction sum type.
type InteractionType string

// Interaction variants.
const (
	TypeQuestion  InteractionType = "question"
	TypeProcedure InteractionType = "procedure"
	TypeText      InteractionType = "text"
)

// ParseInteractionType normalizes a client-sent interaction type string.
func ParseInteractionType(s string) (InteractionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "question":
		return TypeQuestion, nil
	case "procedure":
		return TypeProcedure, nil
	case "text":
		return TypeText, nil
	default:
		return "", fmt.Errorf("unknown interaction type %q", s)
	}
}

// BuildIdentity identifies one versioned training build inside a container.
type BuildIdentity struct {
	Name        string `json:"buildName"`
	Type        string `json:"buildType"`
	Version     string `json:"buildVersion,omitempty"`
	ContainerID string `json:"containerId"`
}

// ProgressKey is the stable identity used for progress upserts. Version is
// deliberately excluded: completing any version of a build completes it.
func (b BuildIdentity) ProgressKey() string {
	return b.ContainerID + "/" + b.Type + "/" + b.Name
}

// SessionSummary carries the client-reported counters for one session.
type SessionSummary struct {
	TotalInteractions         int     `json:"totalInteractions"`
	SuccessfulInteractions    int     `json:"successfulInteractions"`
	FailedInteractions        int     `json:"failedInteractions"`
	TotalAttempts             int     `json:"totalAttempts"`
	TotalFailedAttempts       int     `json:"totalFailedAttempts"`
	SuccessRate               float64 `json:"successRate"`
	AverageTimePerInteraction float64 `json:"averageTimePerInteraction"`
}

// SessionRecord is one subject's attempt at one build version. SessionID is
// the sole upsert key; SessionID and the original SubjectID are immutable
// after creation.
type SessionRecord struct {
	SessionID        string              `json:"sessionId"`
	TrainingID       string              `json:"trainingId"`
	SubjectID        string              `json:"subjectId"`
	Build            BuildIdentity       `json:"build"`
	StartTime        time.Time           `json:"startTime"`
	EndTime          time.Time           `json:"endTime,omitzero"`
	TotalDuration    float64             `json:"totalDuration"`
	CompletionStatus CompletionStatus    `json:"completionStatus"`
	Interactions     []InteractionRecord `json:"interactions"`
	Summary          SessionSummary      `json:"summary"`
	CreatedAt        time.Time           `json:"createdAt,omitzero"`
	UpdatedAt        time.Time           `json:"updatedAt,omitzero"`
}

// InteractionRecord is a closed sum type discriminated by Type. Exactly one of
// Question, Procedure or Text is non-nil, matching Type; the ingestion
// boundary enforces this once so downstream code never checks again.
type InteractionRecord struct {
	InteractionID string          `json:"interactionId"`
	Type          InteractionType `json:"type"`
	Subtype       string          `json:"subtype,omitempty"`
	ObjectID      string          `json:"objectId"`
	StartTime     time.Time       `json:"startTime,omitzero"`
	EndTime       time.Time       `json:"endTime,omitzero"`
	Duration      float64         `json:"duration"`
	Attempts      int             `json:"attempts"`
	Success       bool            `json:"success"`

	Question  *QuestionInteraction  `json:"question,omitempty"`
	Procedure *ProcedureInteraction `json:"procedure,omitempty"`
	Text      *TextInteraction      `json:"text,omitempty"`
}

// ContentKey returns the variant's opaque content key used for metadata
// resolution, or "" when the payload for the declared type is missing.
func (i InteractionRecord) ContentKey() string {
	switch i.Type {
	case TypeQuestion:
		if i.Question != nil {
			return i.Question.QuestionKey
		}
	case TypeProcedure:
		if i.Procedure != nil {
			return i.Procedure.ProcedureKey
		}
	case TypeText:
		if i.Text != nil {
			return i.Text.ContentKey
		}
	}
	return ""
}

// EffectiveDuration prefers the observed wall-clock delta when both timestamps
// are present and the delta is positive, falling back to the reported field.
func (i InteractionRecord) EffectiveDuration() float64 {
	if !i.StartTime.IsZero() && !i.EndTime.IsZero() {
		if d := i.EndTime.Sub(i.StartTime).Seconds(); d > 0 {
			return d
		}
	}
	return i.Duration
}

// QuestionInteraction is the Question variant payload. UserAnswers holds one
// inner list of selected option indexes per attempt, in attempt order.
type QuestionInteraction struct {
	QuestionKey         string  `json:"questionKey"`
	CorrectAnswers      []int   `json:"correctAnswers"`
	UserAnswers         [][]int `json:"userAnswers"`
	FirstAttemptCorrect bool    `json:"firstAttemptCorrect"`
	FinalScore          float64 `json:"finalScore"`
}

// FirstAttempt returns the option indexes selected on the first attempt, or
// nil when no attempt was recorded.
func (q *QuestionInteraction) FirstAttempt() []int {
	if q == nil || len(q.UserAnswers) == 0 {
		return nil
	}
	return q.UserAnswers[0]
}

// ComputeFirstAttemptCorrect compares the first attempt's index set against
// the correct set, ignoring order and duplicates.
func (q *QuestionInteraction) ComputeFirstAttemptCorrect() bool {
	if q == nil || len(q.UserAnswers) == 0 || len(q.CorrectAnswers) == 0 {
		return false
	}
	return sameIndexSet(q.UserAnswers[0], q.CorrectAnswers)
}

func sameIndexSet(a, b []int) bool {
	set := make(map[int]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	other := make(map[int]struct{}, len(b))
	for _, v := range b {
		other[v] = struct{}{}
	}
	if len(set) != len(other) {
		return false
	}
	for v := range set {
		if _, ok := other[v]; !ok {
			return false
		}
	}
	return true
}

// ProcedureInteraction is the Procedure variant payload.
type ProcedureInteraction struct {
	ProcedureKey      string       `json:"procedureKey"`
	TotalSteps        int          `json:"totalSteps"`
	Steps             []StepRecord `json:"steps"`
	TotalWrongClicks  int          `json:"totalWrongClicks"`
	TotalDuration     float64      `json:"totalDuration"`
	PerfectCompletion bool         `json:"perfectCompletion"`
	FinalScore        float64      `json:"finalScore"`
}

// StepRecord is one step inside a procedure interaction.
type StepRecord struct {
	StepNumber            int     `json:"stepNumber"`
	StepKey               string  `json:"stepKey"`
	TargetObjectID        string  `json:"targetObjectId,omitempty"`
	Completed             bool    `json:"completed"`
	Duration              float64 `json:"duration"`
	WrongClicksOnThisStep int     `json:"wrongClicksOnThisStep"`
}

// TextInteraction is the Text variant payload. FinalScore is always 100 for
// text content; reading is not graded.
type TextInteraction struct {
	ContentKey       string  `json:"contentKey"`
	TimeDisplayed    float64 `json:"timeDisplayed"`
	ReadComplete     bool    `json:"readComplete"`
	ScrollPercentage float64 `json:"scrollPercentage"`
	FinalScore       float64 `json:"finalScore"`
}
