package metadata

import (
	"fmt"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/metrics"
)

// ResolvedData is the display view derived for one interaction. Only the
// fields of the interaction's variant are populated. Never persisted.
type ResolvedData struct {
	// Question
	QuestionText string   `json:"questionText,omitempty"`
	Options      []string `json:"options,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`

	// Procedure
	ProcedureTitle string         `json:"procedureTitle,omitempty"`
	Description    string         `json:"description,omitempty"`
	Steps          []ResolvedStep `json:"steps,omitempty"`

	// Text
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ResolvedStep is the display view of one procedure step.
type ResolvedStep struct {
	Title       string `json:"title"`
	Instruction string `json:"instruction,omitempty"`
	Hint        string `json:"hint,omitempty"`
}

// ResolvedInteraction is an InteractionRecord plus its optional display view.
type ResolvedInteraction struct {
	model.InteractionRecord
	Resolved *ResolvedData `json:"resolvedData,omitempty"`
}

// ResolvedSession is a SessionRecord whose interactions carry display views.
// The outer Interactions field shadows the embedded record's raw list in both
// Go and JSON.
type ResolvedSession struct {
	model.SessionRecord
	Interactions []ResolvedInteraction `json:"interactions"`
}

// Resolve derives the display view for one interaction. A nil bundle, unknown
// object or unknown key degrades to the raw content key as display text with
// empty options and steps; it never fails.
func Resolve(i model.InteractionRecord, bundle Bundle, lang string) ResolvedInteraction {
	lang = NormalizeLanguage(lang)
	raw := i.ContentKey()

	fields, ok := lookup(bundle, i.ObjectID, raw)
	if !ok {
		metrics.RecordResolverMiss()
		return ResolvedInteraction{InteractionRecord: i, Resolved: degraded(i, raw)}
	}

	data := &ResolvedData{}
	switch i.Type {
	case model.TypeQuestion:
		recordFallback(fields[FieldText], lang)
		data.QuestionText = ResolveText(fields[FieldText], lang, raw)
		data.Options = resolveOptions(fields, lang)
		feedbackField := FieldFeedbackFailure
		if i.Question != nil && i.Question.FirstAttemptCorrect {
			feedbackField = FieldFeedbackSuccess
		}
		data.Feedback = ResolveText(fields[feedbackField], lang, "")
	case model.TypeProcedure:
		recordFallback(fields[FieldTitle], lang)
		data.ProcedureTitle = ResolveText(fields[FieldTitle], lang, raw)
		data.Description = ResolveText(fields[FieldDescription], lang, "")
		if i.Procedure != nil {
			data.Steps = resolveSteps(bundle[i.ObjectID], i.Procedure.Steps, lang)
		}
	case model.TypeText:
		recordFallback(fields[FieldTitle], lang)
		data.Title = ResolveText(fields[FieldTitle], lang, raw)
		data.Subtitle = ResolveText(fields[FieldSubtitle], lang, "")
		data.Content = ResolveText(fields[FieldContent], lang, "")
	}
	return ResolvedInteraction{InteractionRecord: i, Resolved: data}
}

// ResolveAll maps every interaction of a session. When the build has no
// bundle at all the session passes through with resolvedData left undefined;
// it is never filtered out of the set.
func ResolveAll(s model.SessionRecord, bundle Bundle, lang string) ResolvedSession {
	out := ResolvedSession{
		SessionRecord: s,
		Interactions:  make([]ResolvedInteraction, len(s.Interactions)),
	}
	if bundle == nil {
		for idx, i := range s.Interactions {
			out.Interactions[idx] = ResolvedInteraction{InteractionRecord: i}
		}
		return out
	}
	for idx, i := range s.Interactions {
		out.Interactions[idx] = Resolve(i, bundle, lang)
	}
	return out
}

// recordFallback counts lookups that miss the requested language but will be
// served by a fallback language.
func recordFallback(l LocalizedString, lang string) {
	if _, ok := l.Get(lang); ok {
		return
	}
	if v := ResolveText(l, lang, ""); v != "" {
		metrics.RecordResolverFallback()
	}
}

// lookup walks bundle[objectID][key], tolerating nil maps at every level.
func lookup(bundle Bundle, objectID, key string) (FieldSet, bool) {
	if bundle == nil || objectID == "" || key == "" {
		return nil, false
	}
	object, ok := bundle[objectID]
	if !ok {
		return nil, false
	}
	fields, ok := object[key]
	return fields, ok
}

// degraded builds the raw-key display view for an unresolvable interaction.
func degraded(i model.InteractionRecord, raw string) *ResolvedData {
	data := &ResolvedData{}
	switch i.Type {
	case model.TypeQuestion:
		data.QuestionText = raw
	case model.TypeProcedure:
		data.ProcedureTitle = raw
	case model.TypeText:
		data.Title = raw
	}
	return data
}

// resolveOptions collects option_0, option_1, ... in index order until the
// first gap, keeping index alignment with recorded answers.
func resolveOptions(fields FieldSet, lang string) []string {
	var options []string
	for idx := 0; ; idx++ {
		field, ok := fields[fmt.Sprintf("%s%d", optionFieldPrefix, idx)]
		if !ok {
			break
		}
		options = append(options, ResolveText(field, lang, ""))
	}
	return options
}

// resolveSteps projects each step key through the same object's sub-map.
func resolveSteps(object ObjectContent, steps []model.StepRecord, lang string) []ResolvedStep {
	out := make([]ResolvedStep, len(steps))
	for idx, step := range steps {
		fields, ok := object[step.StepKey]
		if !ok {
			metrics.RecordResolverMiss()
			out[idx] = ResolvedStep{Title: step.StepKey}
			continue
		}
		out[idx] = ResolvedStep{
			Title:       ResolveText(fields[FieldTitle], lang, step.StepKey),
			Instruction: ResolveText(fields[FieldInstruction], lang, ""),
			Hint:        ResolveText(fields[FieldHint], lang, ""),
		}
	}
	return out
}
