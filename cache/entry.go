package cache

import (
	"slices"
	"time"
)

// Tag is an application-chosen label attached to entries for invalidation.
type Tag string

// Mode selects how an invalidation affects matched entries.
type Mode uint8

const (
	// ModeLazy flags entries so the next lookup serves them stale and
	// refreshes in the background.
	ModeLazy Mode = iota
	// ModeImmediate expires entries so the next lookup recomputes.
	ModeImmediate
)

func (m Mode) String() string {
	if m == ModeImmediate {
		return "immediate"
	}
	return "lazy"
}

// Granularity selects how a path invalidation matches entry paths.
type Granularity uint8

const (
	// GranularityPage matches the exact path only.
	GranularityPage Granularity = iota
	// GranularityLayout matches the path and every path below it.
	GranularityLayout
)

func (g Granularity) String() string {
	if g == GranularityLayout {
		return "layout"
	}
	return "page"
}

// Invalidation records the strongest invalidation applied to an entry since
// it was written.
type Invalidation uint8

const (
	InvalidationNone Invalidation = iota
	InvalidationLazy
	InvalidationImmediate
)

// invalidationFor maps a Mode onto the mark it leaves.
func invalidationFor(m Mode) Invalidation {
	if m == ModeImmediate {
		return InvalidationImmediate
	}
	return InvalidationLazy
}

// Entry is one stored value and its metadata.
type Entry struct {
	Key          Key
	Value        []byte
	Tags         []Tag
	Paths        []string
	Profile      Profile
	CreatedAt    time.Time
	Kind         Kind
	Invalidation Invalidation
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Value = slices.Clone(e.Value)
	c.Tags = slices.Clone(e.Tags)
	c.Paths = slices.Clone(e.Paths)
	return &c
}

// HasTag reports whether e carries tag.
func (e *Entry) HasTag(tag Tag) bool {
	return slices.Contains(e.Tags, tag)
}

// Meta is the metadata supplied with a write.
type Meta struct {
	Tags    []Tag
	Paths   []string
	Profile Profile
}
