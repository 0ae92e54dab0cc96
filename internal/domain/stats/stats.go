// Package stats computes per-question, per-procedure and global statistics
// over an already-filtered set of resolved sessions. The computations are
// deterministic: identical input yields identical output, data-shape
// irregularities degrade the affected statistic instead of failing the run.
package stats

import (
	"sort"
	"time"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/metadata"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/metrics"
)

// observeAggregation records one aggregation computation and its latency.
func observeAggregation(start time.Time) {
	metrics.RecordAggregationRun()
	metrics.RecordAggregationLatency(float64(time.Since(start).Milliseconds()))
}

// UserResponse is one subject's recorded answer history for one question.
type UserResponse struct {
	SubjectID           string  `json:"subjectId"`
	FirstAttemptCorrect bool    `json:"firstAttemptCorrect"`
	UserAnswers         [][]int `json:"userAnswers"`
}

// QuestionStats aggregates every response to one distinct question text.
// Rates are percentages; rounding is left to presentation.
type QuestionStats struct {
	QuestionText            string         `json:"questionText"`
	Options                 []string       `json:"options"`
	CorrectAnswers          []int          `json:"correctAnswers"`
	UserResponses           []UserResponse `json:"userResponses"`
	FirstAttemptSuccessRate float64        `json:"firstAttemptSuccessRate"`
	FirstAttemptFailureRate float64        `json:"firstAttemptFailureRate"`
	OptionPickRates         []float64      `json:"optionPickRates"`
	AverageDuration         float64        `json:"averageDuration"`
}

// StepStats aggregates one procedure step across sessions. ErrorCount counts
// sessions that misclicked on the step at least once, not the click total.
type StepStats struct {
	StepNumber      int     `json:"stepNumber"`
	Title           string  `json:"title"`
	CompletionCount int     `json:"completionCount"`
	TotalAttempts   int     `json:"totalAttempts"`
	AvgDuration     float64 `json:"avgDuration"`
	ErrorCount      int     `json:"errorCount"`
	ErrorRate       float64 `json:"errorRate"`
}

// ProcedureStats aggregates every run of one distinct procedure title.
type ProcedureStats struct {
	ProcedureTitle string      `json:"procedureTitle"`
	TotalAttempts  int         `json:"totalAttempts"`
	SuccessCount   int         `json:"successCount"`
	FailCount      int         `json:"failCount"`
	TotalDuration  float64     `json:"totalDuration"`
	Steps          []StepStats `json:"steps"`
}

// FailedQuestion is one entry of the most-failed ranking.
type FailedQuestion struct {
	QuestionText string  `json:"questionText"`
	Failures     int     `json:"failures"`
	Attempts     int     `json:"attempts"`
	FailureRate  float64 `json:"failureRate"`
}

// GlobalStats summarizes a whole session set.
type GlobalStats struct {
	TotalSessions          int              `json:"totalSessions"`
	AverageDuration        float64          `json:"averageDuration"`
	AverageScore           float64          `json:"averageScore"`
	TotalInteractions      int              `json:"totalInteractions"`
	SuccessfulInteractions int              `json:"successfulInteractions"`
	FailedInteractions     int              `json:"failedInteractions"`
	StatusBreakdown        map[string]int   `json:"statusBreakdown"`
	MostFailedQuestions    []FailedQuestion `json:"mostFailedQuestions"`
}

// Percentage computes (numerator/denominator)*100, guarded to 0 when the
// denominator is zero.
func Percentage(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator * 100
}

// questionKey identifies a question by its resolved text, degrading to the
// raw content key when resolution left no text.
func questionKey(ri metadata.ResolvedInteraction) string {
	if ri.Resolved != nil && ri.Resolved.QuestionText != "" {
		return ri.Resolved.QuestionText
	}
	return ri.ContentKey()
}

// procedureKey identifies a procedure by its resolved title, degrading to the
// raw content key.
func procedureKey(ri metadata.ResolvedInteraction) string {
	if ri.Resolved != nil && ri.Resolved.ProcedureTitle != "" {
		return ri.Resolved.ProcedureTitle
	}
	return ri.ContentKey()
}

type questionAcc struct {
	stats         QuestionStats
	firstCorrect  int
	respondents   int
	optionPicks   []int
	durationSum   float64
	durationCount int
}

// Questions aggregates question interactions per distinct resolved question
// text, in encounter order. The returned slice is sorted hardest-first:
// ascending first-attempt success rate, stable on ties.
func Questions(sessions []metadata.ResolvedSession) []QuestionStats {
	defer observeAggregation(time.Now())

	var order []string
	acc := make(map[string]*questionAcc)

	for _, s := range sessions {
		for _, ri := range s.Interactions {
			if ri.Type != model.TypeQuestion || ri.Question == nil {
				continue
			}
			key := questionKey(ri)
			if key == "" {
				continue
			}
			a, ok := acc[key]
			if !ok {
				a = &questionAcc{stats: QuestionStats{
					QuestionText:   key,
					CorrectAnswers: ri.Question.CorrectAnswers,
				}}
				if ri.Resolved != nil {
					a.stats.Options = ri.Resolved.Options
				}
				acc[key] = a
				order = append(order, key)
			}

			a.stats.UserResponses = append(a.stats.UserResponses, UserResponse{
				SubjectID:           s.SubjectID,
				FirstAttemptCorrect: ri.Question.FirstAttemptCorrect,
				UserAnswers:         ri.Question.UserAnswers,
			})

			if d := ri.EffectiveDuration(); d > 0 {
				a.durationSum += d
				a.durationCount++
			}

			first := ri.Question.FirstAttempt()
			if first == nil {
				continue
			}
			a.respondents++
			if ri.Question.FirstAttemptCorrect {
				a.firstCorrect++
			}
			for _, idx := range first {
				if idx < 0 {
					continue
				}
				for len(a.optionPicks) <= idx {
					a.optionPicks = append(a.optionPicks, 0)
				}
				a.optionPicks[idx]++
			}
		}
	}

	out := make([]QuestionStats, 0, len(order))
	for _, key := range order {
		a := acc[key]
		a.stats.FirstAttemptSuccessRate = Percentage(float64(a.firstCorrect), float64(a.respondents))
		a.stats.FirstAttemptFailureRate = Percentage(float64(a.respondents-a.firstCorrect), float64(a.respondents))
		a.stats.AverageDuration = safeMean(a.durationSum, a.durationCount)
		a.stats.OptionPickRates = pickRates(a.optionPicks, len(a.stats.Options), a.respondents)
		out = append(out, a.stats)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FirstAttemptSuccessRate < out[j].FirstAttemptSuccessRate
	})
	return out
}

// pickRates converts first-attempt pick counts into percentages of
// respondents. The slice covers max(known options, highest picked index).
func pickRates(picks []int, optionCount, respondents int) []float64 {
	size := optionCount
	if len(picks) > size {
		size = len(picks)
	}
	if size == 0 {
		return nil
	}
	rates := make([]float64, size)
	for i := range rates {
		count := 0
		if i < len(picks) {
			count = picks[i]
		}
		rates[i] = Percentage(float64(count), float64(respondents))
	}
	return rates
}

func safeMean(sum float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

type procedureAcc struct {
	stats     ProcedureStats
	stepOrder []int
	steps     map[int]*stepAcc
}

type stepAcc struct {
	stats         StepStats
	durationSum   float64
	durationCount int
}

// Procedures aggregates procedure interactions per distinct resolved title,
// in encounter order, sorted ascending by success ratio, stable on ties.
// Steps are aligned by their authored step number.
func Procedures(sessions []metadata.ResolvedSession) []ProcedureStats {
	defer observeAggregation(time.Now())

	var order []string
	acc := make(map[string]*procedureAcc)

	for _, s := range sessions {
		for _, ri := range s.Interactions {
			if ri.Type != model.TypeProcedure || ri.Procedure == nil {
				continue
			}
			key := procedureKey(ri)
			if key == "" {
				continue
			}
			a, ok := acc[key]
			if !ok {
				a = &procedureAcc{
					stats: ProcedureStats{ProcedureTitle: key},
					steps: make(map[int]*stepAcc),
				}
				acc[key] = a
				order = append(order, key)
			}

			a.stats.TotalAttempts++
			if ri.Success {
				a.stats.SuccessCount++
			} else {
				a.stats.FailCount++
			}
			a.stats.TotalDuration += ri.Procedure.TotalDuration

			for stepIdx, step := range ri.Procedure.Steps {
				num := step.StepNumber
				if num <= 0 {
					num = stepIdx + 1
				}
				sa, ok := a.steps[num]
				if !ok {
					sa = &stepAcc{stats: StepStats{StepNumber: num, Title: step.StepKey}}
					if ri.Resolved != nil && stepIdx < len(ri.Resolved.Steps) {
						sa.stats.Title = ri.Resolved.Steps[stepIdx].Title
					}
					a.steps[num] = sa
					a.stepOrder = append(a.stepOrder, num)
				}
				sa.stats.TotalAttempts++
				if step.Completed {
					sa.stats.CompletionCount++
				}
				if step.WrongClicksOnThisStep > 0 {
					sa.stats.ErrorCount++
				}
				if step.Duration > 0 {
					sa.durationSum += step.Duration
					sa.durationCount++
				}
			}
		}
	}

	out := make([]ProcedureStats, 0, len(order))
	for _, key := range order {
		a := acc[key]
		sort.Ints(a.stepOrder)
		for _, num := range a.stepOrder {
			sa := a.steps[num]
			sa.stats.AvgDuration = safeMean(sa.durationSum, sa.durationCount)
			sa.stats.ErrorRate = Percentage(float64(sa.stats.ErrorCount), float64(sa.stats.TotalAttempts))
			a.stats.Steps = append(a.stats.Steps, sa.stats)
		}
		out = append(out, a.stats)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri := Percentage(float64(out[i].SuccessCount), float64(out[i].TotalAttempts))
		rj := Percentage(float64(out[j].SuccessCount), float64(out[j].TotalAttempts))
		return ri < rj
	})
	return out
}

// Aggregate computes the global view of a session set. topN bounds the
// most-failed question ranking; a non-positive value disables it.
func Aggregate(sessions []metadata.ResolvedSession, topN int) GlobalStats {
	defer observeAggregation(time.Now())

	g := GlobalStats{
		StatusBreakdown: make(map[string]int),
	}
	g.TotalSessions = len(sessions)

	var durationSum, scoreSum float64
	scored := 0
	for _, s := range sessions {
		durationSum += s.TotalDuration
		g.StatusBreakdown[string(s.CompletionStatus)]++
		g.TotalInteractions += len(s.Interactions)
		for _, ri := range s.Interactions {
			if ri.Success {
				g.SuccessfulInteractions++
			} else {
				g.FailedInteractions++
			}
		}
		if score, ok := sessionScore(s); ok {
			scoreSum += score
			scored++
		}
	}
	g.AverageDuration = safeMean(durationSum, len(sessions))
	g.AverageScore = safeMean(scoreSum, scored)
	g.MostFailedQuestions = mostFailed(sessions, topN)
	return g
}

// sessionScore averages the final scores of a session's interactions,
// falling back to the reported success rate when no interactions exist.
func sessionScore(s metadata.ResolvedSession) (float64, bool) {
	if len(s.Interactions) == 0 {
		if s.Summary.TotalInteractions == 0 {
			return 0, false
		}
		return s.Summary.SuccessRate, true
	}
	var sum float64
	for _, ri := range s.Interactions {
		switch {
		case ri.Question != nil:
			sum += ri.Question.FinalScore
		case ri.Procedure != nil:
			sum += ri.Procedure.FinalScore
		case ri.Text != nil:
			sum += ri.Text.FinalScore
		}
	}
	return sum / float64(len(s.Interactions)), true
}

// mostFailed ranks questions by first-attempt failure ratio, descending,
// preserving encounter order on ties.
func mostFailed(sessions []metadata.ResolvedSession, topN int) []FailedQuestion {
	if topN <= 0 {
		return nil
	}
	questions := Questions(sessions)

	ranked := make([]FailedQuestion, 0, len(questions))
	for _, q := range questions {
		attempts := 0
		failures := 0
		for _, r := range q.UserResponses {
			if len(r.UserAnswers) == 0 {
				continue
			}
			attempts++
			if !r.FirstAttemptCorrect {
				failures++
			}
		}
		if attempts == 0 {
			continue
		}
		ranked = append(ranked, FailedQuestion{
			QuestionText: q.QuestionText,
			Failures:     failures,
			Attempts:     attempts,
			FailureRate:  Percentage(float64(failures), float64(attempts)),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FailureRate > ranked[j].FailureRate
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
