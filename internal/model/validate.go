package model

import (
	"strings"
	"unicode/utf8"
)

// maxVideoIDLength bounds the opaque video identifier.
const maxVideoIDLength = 256

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateViewedEvent checks that the event names a video.
// It returns a *ValidationError if any rules fail, or nil if the event is valid.
func ValidateViewedEvent(e ViewedEvent) error {
	var ve ValidationError
	validateVideoID(&ve, "video.id", e.Video.ID)
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateHistoryRecord checks a record before it is persisted.
func ValidateHistoryRecord(r *HistoryRecord) error {
	var ve ValidationError
	if r.ID == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "id", Message: "is required"})
	}
	validateVideoID(&ve, "videoId", r.VideoID)
	if r.WatchedAt.IsZero() {
		ve.Errors = append(ve.Errors, FieldError{Field: "watchedAt", Message: "is required"})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func validateVideoID(ve *ValidationError, field, id string) {
	switch {
	case strings.TrimSpace(id) == "":
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: "is required"})
	case utf8.RuneCountInString(id) > maxVideoIDLength:
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: "must be at most 256 characters"})
	}
}
