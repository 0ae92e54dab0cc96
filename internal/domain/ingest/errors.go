package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownContainer marks an envelope whose container id matches no
// supported naming convention; attribution is impossible.
var ErrUnknownContainer = errors.New("unknown container")

// ValidationError carries one diagnostic per invalid envelope field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid envelope"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "invalid envelope: " + strings.Join(parts, "; ")
}

// validationErrors accumulates field diagnostics during envelope
// validation.
type validationErrors struct {
	fields map[string]string
}

func (v *validationErrors) add(field, diagnostic string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	v.fields[field] = diagnostic
}

// err returns the accumulated ValidationError, or nil when every field
// passed.
func (v *validationErrors) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
