package directive

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/observe"
)

// Deprecations warns once per legacy name.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Warn logs only in development mode, and at most once per name until Reset.
type Deprecations struct {
	logger observe.Logger
	dev    bool

	mu     sync.Mutex
	warned map[string]struct{}
}

// NewDeprecations creates a registry. A nil logger disables output.
func NewDeprecations(logger observe.Logger, dev bool) *Deprecations {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Deprecations{logger: logger, dev: dev, warned: make(map[string]struct{})}
}

// Warn records a use of old and reports whether this call emitted the warning.
func (d *Deprecations) Warn(ctx context.Context, old, replacement string) bool {
	if !d.dev {
		return false
	}
	d.mu.Lock()
	if _, seen := d.warned[old]; seen {
		d.mu.Unlock()
		return false
	}
	d.warned[old] = struct{}{}
	d.mu.Unlock()

	d.logger.Warn(ctx, "deprecated API used",
		observe.F("deprecated", old), observe.F("replacement", replacement))
	return true
}

// Reset forgets every warning issued so far.
func (d *Deprecations) Reset() {
	d.mu.Lock()
	d.warned = make(map[string]struct{})
	d.mu.Unlock()
}

var deprecations atomic.Pointer[Deprecations]

func init() {
	deprecations.Store(NewDeprecations(nil, false))
}

// InitDeprecations installs the process-wide registry. Call it once at
// startup; until then legacy names are silent.
func InitDeprecations(logger observe.Logger, dev bool) {
	deprecations.Store(NewDeprecations(logger, dev))
}

// ResetDeprecations clears the process-wide registry's memory of issued warnings.
func ResetDeprecations() {
	deprecations.Load().Reset()
}

// WarnDeprecated reports a use of old through the process-wide registry.
func WarnDeprecated(ctx context.Context, old, replacement string) bool {
	return deprecations.Load().Warn(ctx, old, replacement)
}

// UnstableCacheTag is the legacy name of AddTag.
//
// Deprecated: use AddTag.
func UnstableCacheTag(ctx context.Context, tags ...cache.Tag) error {
	WarnDeprecated(ctx, "UnstableCacheTag", "AddTag")
	return AddTag(ctx, tags...)
}

// UnstableCacheLife is the legacy name of UseProfile.
//
// Deprecated: use UseProfile.
func UnstableCacheLife(ctx context.Context, name string) error {
	WarnDeprecated(ctx, "UnstableCacheLife", "UseProfile")
	return UseProfile(ctx, name)
}
