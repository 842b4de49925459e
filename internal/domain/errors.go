package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrStateConflict = errors.New("state conflict")
)

// ValidationError carries per-field rule failures. It unwraps to ErrValidation.
type ValidationError struct {
	Fields map[string]string
	Reason string
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Reason == "" {
			return ErrValidation.Error()
		}
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError reports a rejected lifecycle transition. It unwraps to ErrStateConflict.
type TransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s cannot %s from status %q", ErrStateConflict, e.Entity, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrStateConflict }
