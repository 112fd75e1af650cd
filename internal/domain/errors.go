package domain

import "errors"

var (
	// ErrBusy is returned when a flow already has a call in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrNotFound is returned for unknown challenge, pod or task references.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for empty or malformed user input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid state")
)
