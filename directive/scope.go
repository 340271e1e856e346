package directive

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jonwraymond/rendercache/cache"
)

// frame is the cache scope of one running cacheable body.
type frame struct {
	kind     cache.Kind
	profiles *cache.Profiles

	mu       sync.Mutex
	tags     []cache.Tag
	declared cache.Profile
	nested   *cache.Profile
}

func newFrame(kind cache.Kind, profiles *cache.Profiles, declared cache.Profile, tags []cache.Tag) *frame {
	return &frame{kind: kind, profiles: profiles, declared: declared, tags: slices.Clone(tags)}
}

func (f *frame) addTags(tags ...cache.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tags {
		if !slices.Contains(f.tags, t) {
			f.tags = append(f.tags, t)
		}
	}
}

func (f *frame) setProfile(p cache.Profile) {
	f.mu.Lock()
	f.declared = p
	f.mu.Unlock()
}

// absorb folds a nested scope's result into f.
func (f *frame) absorb(tags []cache.Tag, p cache.Profile) {
	f.addTags(tags...)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nested == nil {
		f.nested = &p
		return
	}
	t := f.nested.Tighten(p)
	f.nested = &t
}

// meta is the metadata of the entry this scope produces.
func (f *frame) meta(paths []string) cache.Meta {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := f.declared
	if f.nested != nil {
		p = p.Tighten(*f.nested)
	}
	return cache.Meta{Tags: slices.Clone(f.tags), Paths: slices.Clone(paths), Profile: p}
}

type frameKey struct{}

func withFrame(ctx context.Context, f *frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

func frameFrom(ctx context.Context) *frame {
	f, _ := ctx.Value(frameKey{}).(*frame)
	return f
}

// InScope reports whether ctx belongs to a running cacheable body.
func InScope(ctx context.Context) bool {
	return frameFrom(ctx) != nil
}

// ActiveKind returns the kind of the innermost cache scope.
func ActiveKind(ctx context.Context) (cache.Kind, bool) {
	f := frameFrom(ctx)
	if f == nil {
		return 0, false
	}
	return f.kind, true
}

// AddTag attaches tags to the entry being produced.
func AddTag(ctx context.Context, tags ...cache.Tag) error {
	f := frameFrom(ctx)
	if f == nil {
		return ErrOutsideCacheScope
	}
	for _, t := range tags {
		if err := cache.ValidateTag(t); err != nil {
			return fmt.Errorf("tag %q: %w", t, err)
		}
	}
	f.addTags(tags...)
	return nil
}

// SetProfile sets the cache-life profile of the entry being produced. Nested
// scopes can still tighten it.
func SetProfile(ctx context.Context, p cache.Profile) error {
	f := frameFrom(ctx)
	if f == nil {
		return ErrOutsideCacheScope
	}
	if err := p.Validate(); err != nil {
		return err
	}
	f.setProfile(p)
	return nil
}

// UseProfile sets the entry's profile to a named one.
func UseProfile(ctx context.Context, name string) error {
	f := frameFrom(ctx)
	if f == nil {
		return ErrOutsideCacheScope
	}
	p, err := f.profiles.Get(name)
	if err != nil {
		return err
	}
	f.setProfile(p)
	return nil
}
