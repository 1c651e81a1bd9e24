package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is missing or malformed.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidStatus is returned when an occurrence status is not one of the known values.
	ErrInvalidStatus = errors.New("invalid occurrence status")

	// ErrInvalidStartTime is returned when a start time is present but not HH:MM or HH:MM:SS.
	ErrInvalidStartTime = errors.New("invalid start time")

	// ErrEmptyTitle is returned when an occurrence has no title.
	ErrEmptyTitle = errors.New("occurrence title cannot be empty")

	// ErrEmptyName is returned when a recipient has no display name.
	ErrEmptyName = errors.New("recipient name cannot be empty")
)
