// Package metadata resolves opaque content keys against versioned localized
// content bundles. Resolution never fails: missing bundles, objects or keys
// degrade to the raw key.
package metadata

import (
	"strings"

	"golang.org/x/text/language"
)

// Well-known field names inside a bundle entry. These are authoring
// conventions of the content pipeline.
const (
	FieldText            = "text"
	FieldTitle           = "title"
	FieldSubtitle        = "subtitle"
	FieldContent         = "content"
	FieldDescription     = "description"
	FieldInstruction     = "instruction"
	FieldHint            = "hint"
	FieldFeedbackSuccess = "feedback_success"
	FieldFeedbackFailure = "feedback_failure"
	optionFieldPrefix    = "option_"
)

// fallbackLanguages is the fixed authoring convention: content is authored in
// French first, then English. The order is deliberate and load-bearing.
var fallbackLanguages = []string{"fr", "en"}

// LocalizedString maps a language code to authored text.
type LocalizedString map[string]string

// FieldSet maps a field name to its localized values.
type FieldSet map[string]LocalizedString

// ObjectContent maps a content key to its fields.
type ObjectContent map[string]FieldSet

// Bundle is a build's externally authored localized-content map, keyed
// objectId -> contentKey -> field -> language -> string. Read-only here.
type Bundle map[string]ObjectContent

// Get returns the exact-language value without fallback.
func (l LocalizedString) Get(lang string) (string, bool) {
	v, ok := l[lang]
	return v, ok && v != ""
}

// ResolveText resolves one localized string through the fixed fallback chain:
// requested language, then "fr", then "en", then the raw key.
func ResolveText(l LocalizedString, lang, raw string) string {
	if v, ok := l.Get(lang); ok {
		return v
	}
	for _, fb := range fallbackLanguages {
		if fb == lang {
			continue
		}
		if v, ok := l.Get(fb); ok {
			return v
		}
	}
	return raw
}

// NormalizeLanguage reduces a BCP-47 tag to its base language ("fr-CA" ->
// "fr"). Unparseable input is lowercased and trimmed as-is.
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(lang)
	}
	base, _ := tag.Base()
	return base.String()
}
