package domain

import "errors"

var (
	// ErrNotFound is returned when a message, status or user has no backing record.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor does not own the record it tries to mutate.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput is returned when required correlation fields are missing.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransientIO wraps persistence failures.
	ErrTransientIO = errors.New("persistence unavailable")
)
