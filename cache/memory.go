package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryConfig configures a MemoryHandler.
type MemoryConfig struct {
	// SweepInterval runs Purge periodically when positive.
	SweepInterval time.Duration
	// Now returns the current time for Purge. Default: time.Now.
	Now func() time.Time
}

// MemoryHandler is the process-local Handler.
type MemoryHandler struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryHandler creates an in-memory handler. When SweepInterval is set a
// janitor goroutine purges expired entries until Close is called.
func NewMemoryHandler(cfg MemoryConfig) *MemoryHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	h := &MemoryHandler{
		entries: make(map[Key]*Entry),
		now:     cfg.Now,
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go h.janitor(cfg.SweepInterval)
	}
	return h
}

func (h *MemoryHandler) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Purge(h.now())
		case <-h.stop:
			return
		}
	}
}

// Close stops the janitor. It is safe to call more than once.
func (h *MemoryHandler) Close() error {
	h.stopOnce.Do(func() { close(h.stop) })
	return nil
}

// Get returns a copy of the stored entry, or nil on a miss.
func (h *MemoryHandler) Get(_ context.Context, key Key) (*Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entries[key].Clone(), nil
}

// Set stores a copy of entry under key.
func (h *MemoryHandler) Set(_ context.Context, key Key, entry *Entry) error {
	stored := entry.Clone()
	stored.Key = key

	h.mu.Lock()
	h.entries[key] = stored
	h.mu.Unlock()
	return nil
}

// Delete removes key. Idempotent.
func (h *MemoryHandler) Delete(_ context.Context, key Key) error {
	h.mu.Lock()
	delete(h.entries, key)
	h.mu.Unlock()
	return nil
}

// ExpireTags marks every entry carrying one of tags.
func (h *MemoryHandler) ExpireTags(_ context.Context, tags []Tag, mode Mode) error {
	mark := invalidationFor(mode)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if slices.ContainsFunc(tags, e.HasTag) && e.Invalidation < mark {
			e.Invalidation = mark
		}
	}
	return nil
}

// ExpirePaths lazily invalidates every entry rendered at a matching path.
func (h *MemoryHandler) ExpirePaths(_ context.Context, paths []string, g Granularity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e.Invalidation >= InvalidationLazy {
			continue
		}
		for _, target := range paths {
			if slices.ContainsFunc(e.Paths, func(p string) bool { return PathMatches(p, target, g) }) {
				e.Invalidation = InvalidationLazy
				break
			}
		}
	}
	return nil
}

// Purge removes entries past their expire time and returns how many it removed.
func (h *MemoryHandler) Purge(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for k, e := range h.entries {
		if Resolve(e, now) == ExpiredMustRecompute {
			delete(h.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries.
func (h *MemoryHandler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

var (
	_ Handler = (*MemoryHandler)(nil)
	_ Deleter = (*MemoryHandler)(nil)
)
