package revalidate

import "errors"

var (
	// ErrAlreadyConsumed means a Request was submitted more than once.
	ErrAlreadyConsumed = errors.New("revalidate: request already consumed")

	ErrInvalidRequest = errors.New("revalidate: invalid request")
	ErrMissingStore   = errors.New("revalidate: store is required")
)
