package health

import "errors"

var (
	// ErrCheckTimeout means a check did not finish before the aggregate deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	ErrCheckerNotFound = errors.New("health: checker not found")
)
