package scope

import (
	"context"
	"slices"
	"time"
)

// Caller is the party private cache entries are scoped to.
type Caller struct {
	// ID is stable for the lifetime of the caller's session.
	ID string

	// Subject is the authenticated principal, if any.
	Subject string

	// Secret is folded into private cache keys. Never log it.
	Secret []byte

	Roles []string

	// Claims contains the raw claims from the session token.
	Claims map[string]any

	ExpiresAt time.Time
}

// HasRole reports whether the caller holds role.
func (c *Caller) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IsExpired reports whether the caller's session ended before now.
func (c *Caller) IsExpired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}

// ScopeTag is the tag every private entry of this caller carries, so ending
// the session can evict them together.
func (c *Caller) ScopeTag() string {
	return "_scope:" + c.ID
}

type contextKey int

const callerKey contextKey = iota

// WithCaller returns a new context with c attached.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// FromContext returns the caller attached to ctx, or nil.
func FromContext(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey).(*Caller)
	return c
}

// IDFromContext returns the caller ID attached to ctx, or "".
func IDFromContext(ctx context.Context) string {
	c := FromContext(ctx)
	if c == nil {
		return ""
	}
	return c.ID
}
