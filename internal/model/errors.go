package model

import "errors"

// Sentinel errors returned across package boundaries. Callers match
// them with errors.Is and translate to short user-facing messages.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrInvalidOptionCount = errors.New("polls require between 2 and 10 options")
)
