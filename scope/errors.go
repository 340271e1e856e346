package scope

import "errors"

// Sentinel errors for caller resolution.
var (
	ErrMissingCredentials = errors.New("scope: missing credentials")
	ErrInvalidCredentials = errors.New("scope: invalid credentials")
	ErrTokenExpired       = errors.New("scope: token expired")
	ErrTokenMalformed     = errors.New("scope: token malformed")
	ErrMissingSigningKey  = errors.New("scope: signing key not configured")

	// ErrNoCaller means a private scope was entered without a caller in context.
	ErrNoCaller = errors.New("scope: no caller in context")

	ErrForbidden = errors.New("scope: access denied")
)
