package boundary

import "errors"

var (
	// ErrForbiddenDynamicAccess means a dynamic primitive was read inside a
	// cache scope whose kind does not permit it.
	ErrForbiddenDynamicAccess = errors.New("boundary: dynamic access forbidden in cache scope")

	// ErrPostponed is returned by Access during prerender when a read needs
	// request-time data. Render functions should return it unchanged.
	ErrPostponed = errors.New("boundary: render postponed to request time")

	ErrNilNode       = errors.New("boundary: node is nil")
	ErrDuplicateID   = errors.New("boundary: duplicate node id")
	ErrNodeNotFound  = errors.New("boundary: node not found")
	ErrMissingRunner = errors.New("boundary: cache node requires a runner")
)
