package types

import (
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/metadata"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/stats"
)

// SessionPage is one page of resolved sessions plus the aggregates over
// the full filtered set.
type SessionPage struct {
	Sessions   []metadata.ResolvedSession `json:"sessions"`
	Pagination Pagination                 `json:"pagination"`
	Aggregates stats.GlobalStats          `json:"aggregates"`
}

// BuildStatsResult is the heavier drill-down answer for one build.
type BuildStatsResult struct {
	Questions  []stats.QuestionStats  `json:"questions"`
	Procedures []stats.ProcedureStats `json:"procedures"`
	Sessions   int                    `json:"sessions"`
}
