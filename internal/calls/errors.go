package calls

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("calls: not found")
	ErrPreconditionFailed  = errors.New("calls: precondition failed")
	ErrServerConfiguration = errors.New("calls: server configuration error")
	ErrWebhookAuth         = errors.New("calls: webhook authentication failed")
	ErrInvalidTransition   = errors.New("calls: invalid status transition")
)

// FieldError is one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed caller input. It never accompanies a
// state change.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "calls: invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ProviderError wraps an upstream failure (transcription start/status,
// analysis).
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("calls: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}
