package directive

import "errors"

// Sentinel errors for directive use.
var (
	// ErrOutsideCacheScope means an in-scope call was made outside a cacheable body.
	ErrOutsideCacheScope = errors.New("directive: called outside a cacheable function")

	// ErrInsideCacheScope means a request-level call was made inside a cacheable body.
	ErrInsideCacheScope = errors.New("directive: called inside a cacheable function")

	// ErrPrivateInsideShared means a private scope was nested in a public or
	// remote one, which would leak caller data into a shared entry.
	ErrPrivateInsideShared = errors.New("directive: private cache scope inside a shared scope")

	ErrNilBody       = errors.New("directive: cacheable call has no body")
	ErrMissingStore  = errors.New("directive: store is required")
	ErrMissingCaller = errors.New("directive: private cache scope requires a caller")
)
