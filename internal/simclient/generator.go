package simclient

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/ingest"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	profileDivisor     = 4
)

// Learner profile cases.
const (
	caseConfidentLearner  = 0
	caseStrugglingLearner = 1
	caseCarefulReader     = 2
	caseAbandoningLearner = 3
)

// Session timing ranges in seconds.
const (
	minSessionDuration   = 120.0
	sessionDurationRange = 600.0
	startTimeSpread      = 24 * time.Hour
)

// scenarios a generated session can draw its build from.
var builds = []struct {
	name    string
	version string
}{
	{"safety-101", "1.2.0"},
	{"fire-response", "2.0.1"},
	{"machine-operation", "1.0.0"},
}

// SessionScript is one simulated session: an opening in-progress envelope
// followed by a closing envelope with the final status and interactions.
type SessionScript struct {
	Opening ingest.Envelope
	Closing ingest.Envelope
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [0, max).
func getRandomInt(max int64) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(max))
	return int(n.Int64())
}

// generateSessions creates the configured number of session scripts.
func generateSessions(ctx context.Context, config *Config, stats *Stats, token string) ([]SessionScript, error) {
	logger.Get().Info(ctx, "generating session scripts", logger.Int("numSessions", config.NumSessions))

	scripts := make([]SessionScript, config.NumSessions)
	now := time.Now().UTC()

	for i := range scripts {
		sessionID := uuid.New().String()
		build := builds[getRandomInt(int64(len(builds)))]
		start := now.Add(-time.Duration(getRandomFloat() * float64(startTimeSpread)))
		duration := minSessionDuration + getRandomFloat()*sessionDurationRange
		end := start.Add(time.Duration(duration * float64(time.Second)))
		profile := getRandomInt(profileDivisor)

		opening := ingest.Envelope{
			SessionID:        sessionID,
			TrainingID:       build.name,
			BuildName:        build.name,
			BuildType:        "wisetrainer",
			BuildVersion:     build.version,
			ContainerID:      config.ContainerID,
			StartTime:        start,
			CompletionStatus: string(model.StatusInProgress),
			AuthToken:        token,
		}

		closing := opening
		closing.EndTime = end
		closing.TotalDuration = duration
		closing.Interactions = generateInteractions(profile, start, duration)
		if profile == caseAbandoningLearner {
			closing.CompletionStatus = string(model.StatusAbandoned)
		} else {
			closing.CompletionStatus = string(model.StatusCompleted)
		}

		scripts[i] = SessionScript{Opening: opening, Closing: closing}
	}

	stats.SessionsGenerated = len(scripts)
	return scripts, nil
}

// generateInteractions builds the interaction trace for one learner profile.
func generateInteractions(profile int, start time.Time, duration float64) []model.InteractionRecord {
	perStep := duration / 3
	question := model.InteractionRecord{
		InteractionID: uuid.New().String(),
		Type:          model.TypeQuestion,
		ObjectID:      "control-panel",
		StartTime:     start,
		Duration:      perStep,
		Attempts:      1,
		Success:       true,
		Question: &model.QuestionInteraction{
			QuestionKey:    "question_emergency_stop",
			CorrectAnswers: []int{1},
			UserAnswers:    [][]int{{1}},
			FinalScore:     100,
		},
	}
	procedure := model.InteractionRecord{
		InteractionID: uuid.New().String(),
		Type:          model.TypeProcedure,
		ObjectID:      "lockout-station",
		StartTime:     start.Add(time.Duration(perStep * float64(time.Second))),
		Duration:      perStep,
		Attempts:      1,
		Success:       true,
		Procedure: &model.ProcedureInteraction{
			ProcedureKey: "procedure_lockout_tagout",
			TotalSteps:   3,
			Steps: []model.StepRecord{
				{StepNumber: 1, StepKey: "step_power_off", Completed: true, Duration: perStep / 3},
				{StepNumber: 2, StepKey: "step_apply_lock", Completed: true, Duration: perStep / 3},
				{StepNumber: 3, StepKey: "step_verify", Completed: true, Duration: perStep / 3},
			},
			TotalDuration:     perStep,
			PerfectCompletion: true,
			FinalScore:        100,
		},
	}
	text := model.InteractionRecord{
		InteractionID: uuid.New().String(),
		Type:          model.TypeText,
		ObjectID:      "briefing-board",
		StartTime:     start.Add(time.Duration(2 * perStep * float64(time.Second))),
		Duration:      perStep,
		Attempts:      1,
		Success:       true,
		Text: &model.TextInteraction{
			ContentKey:       "content_site_rules",
			TimeDisplayed:    perStep,
			ReadComplete:     true,
			ScrollPercentage: 100,
			FinalScore:       100,
		},
	}

	switch profile {
	case caseStrugglingLearner:
		// Wrong first answer, right on the second try.
		question.Attempts = 2
		question.Question.UserAnswers = [][]int{{0}, {1}}
		question.Question.FinalScore = 50
		procedure.Procedure.PerfectCompletion = false
		procedure.Procedure.TotalWrongClicks = 3
		procedure.Procedure.FinalScore = 70
		return []model.InteractionRecord{question, procedure, text}
	case caseCarefulReader:
		return []model.InteractionRecord{text, question}
	case caseAbandoningLearner:
		// Walked away after the first interaction.
		return []model.InteractionRecord{question}
	default:
		return []model.InteractionRecord{question, procedure, text}
	}
}
