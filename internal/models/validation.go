package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors.
var (
	ErrMissingMessageID = errors.New("message id is required")
	ErrMissingChatID    = errors.New("chat id is required")
	ErrInvalidRole      = errors.New("sender role must be agent or counterpart")
	ErrInvalidStatus    = errors.New("status must be sent, delivered or read")
	ErrInvalidLatitude  = errors.New("latitude must be within [-90, 90]")
	ErrInvalidLongitude = errors.New("longitude must be within [-180, 180]")
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors aggregates multiple validation failures.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Add records a validation error for a field.
func (v *ValidationErrors) Add(field string, err error) {
	if err == nil {
		return
	}

	var nested *ValidationErrors
	if errors.As(err, &nested) {
		for _, sub := range nested.Errors {
			v.Errors = append(v.Errors, ValidationError{
				Field:   joinField(field, sub.Field),
				Message: sub.Message,
				Cause:   sub.Cause,
			})
		}
		return
	}

	v.Errors = append(v.Errors, ValidationError{
		Field:   field,
		Message: err.Error(),
		Cause:   err,
	})
}

// Err returns nil if there are no errors, otherwise returns the validation error.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Error implements error.
func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v.Errors))
	for _, err := range v.Errors {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}

// Is allows errors.Is to match nested validation errors.
func (v *ValidationErrors) Is(target error) bool {
	if v == nil {
		return false
	}
	for _, err := range v.Errors {
		if err.Cause != nil && errors.Is(err.Cause, target) {
			return true
		}
	}
	return false
}

// Validate checks the fields a session relies on.
func (m Message) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(m.ID) == "" {
		validation.Add("id", ErrMissingMessageID)
	}
	if strings.TrimSpace(m.ChatID) == "" {
		validation.Add("chatId", ErrMissingChatID)
	}
	switch m.SenderRole {
	case SenderAgent, SenderCounterpart:
	default:
		validation.Add("senderRole", ErrInvalidRole)
	}
	if m.Status.Rank() == 0 {
		validation.Add("status", ErrInvalidStatus)
	}
	if m.Location != nil {
		validation.Add("location", m.Location.Validate())
	}
	return validation.Err()
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	validation := &ValidationErrors{}
	if l.Lat < -90 || l.Lat > 90 {
		validation.Add("lat", ErrInvalidLatitude)
	}
	if l.Lng < -180 || l.Lng > 180 {
		validation.Add("lng", ErrInvalidLongitude)
	}
	return validation.Err()
}

func joinField(prefix, field string) string {
	switch {
	case prefix == "":
		return field
	case field == "":
		return prefix
	default:
		return prefix + "." + field
	}
}
