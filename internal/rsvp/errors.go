package rsvp

import "errors"

// Caller-facing failures. Wrapped errors carry the detail; match with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrRateLimited  = errors.New("too many attempts, try again later")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("rsvp not found")
)
