package domain

import "errors"

// Error taxonomy shared by services and handlers. Wrap with fmt.Errorf("...: %w", Err...)
// so the message reaches the client while the category drives the status code.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
