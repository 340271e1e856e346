package server

import "errors"

var (
	ErrMissingRouter   = errors.New("server: revalidation router is required")
	ErrMissingSessions = errors.New("server: session resolver is required")
)
