package handlers

import "errors"

// Sentinel errors for handler construction.
var (
	ErrInvalidRegistration = errors.New("handlers: invalid factory registration")
	ErrDuplicateType       = errors.New("handlers: type already registered")
	ErrUnknownType         = errors.New("handlers: type is not registered")
	ErrMissingDSN          = errors.New("handlers: dsn is required")
)
