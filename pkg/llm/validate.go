package llm

import (
	"errors"
	"fmt"
	"strings"
)

const (
	minTemperature = 0
	maxTemperature = 2
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for a request body that must not reach the
// upstream. It maps to HTTP 400.
type ValidationError struct {
	Fields []FieldError
}

func newValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Message returns the first field message, suitable for a client-facing error.
func (e *ValidationError) Message() string {
	if len(e.Fields) == 0 {
		return "invalid request"
	}
	return e.Fields[0].Message
}

// Validate checks the request against the accepted schema. It reports every
// problem it finds, not just the first.
func (r *ChatRequest) Validate() error {
	var fields []FieldError

	if len(r.Messages) == 0 {
		fields = append(fields, FieldError{Field: "messages", Message: "must contain at least one message"})
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			fields = append(fields, FieldError{
				Field:   messageField(i, "role"),
				Message: fmt.Sprintf("must be one of %s, %s, %s, %s", RoleSystem, RoleUser, RoleAssistant, RoleTool),
			})
		}
	}

	if r.BufferLength != nil && *r.BufferLength < 1 {
		fields = append(fields, FieldError{Field: "buffer_length", Message: "must be at least 1"})
	}
	if r.Temperature != nil && (*r.Temperature < minTemperature || *r.Temperature > maxTemperature) {
		fields = append(fields, FieldError{Field: "temperature", Message: fmt.Sprintf("must be between %d and %d", minTemperature, maxTemperature)})
	}

	if _, err := r.Selector(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			fields = append(fields, verr.Fields...)
		}
	}

	if len(fields) > 0 {
		return newValidationError(fields...)
	}
	return nil
}
