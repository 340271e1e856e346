package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/resilience"
)

// ErrEvictUnsupported is returned by Evict when the key's handler cannot delete.
var ErrEvictUnsupported = errors.New("cache: handler does not support eviction")

const keyLocks = 64

// StoreConfig configures a Store.
type StoreConfig struct {
	// Handlers maps each kind to its handler. Kinds without a handler use the
	// KindPublic handler. Default: one MemoryHandler for every kind.
	Handlers map[Kind]Handler
	// Guard wraps every handler call. Default: no retries, no timeout.
	Guard *resilience.Guard
	// RefreshLimiter bounds concurrent background refreshes. Default: 4.
	RefreshLimiter *resilience.Limiter
	// Stripes is the number of tag index lock stripes. Default: 16.
	Stripes int
	// Now returns the current time. Default: time.Now.
	Now     func() time.Time
	Logger  observe.Logger
	Metrics observe.Metrics
}

// Result is the outcome of a Lookup.
type Result struct {
	Entry     *Entry
	Hit       bool
	Freshness Freshness
}

// Outcome reports how GetOrCompute produced its entry.
type Outcome uint8

const (
	OutcomeMiss Outcome = iota
	OutcomeHit
	OutcomeStale
	OutcomeBypass
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return observe.OutcomeHit
	case OutcomeStale:
		return observe.OutcomeStale
	case OutcomeBypass:
		return observe.OutcomeBypass
	default:
		return observe.OutcomeMiss
	}
}

// ComputeFunc produces a value and its metadata on a miss.
type ComputeFunc func(ctx context.Context) ([]byte, Meta, error)

// record is the store's own view of a key it has indexed.
type record struct {
	ord        uint32
	gen        uint64
	tags       []Tag
	paths      []string
	createdAt  time.Time
	profile    Profile
	mark       Invalidation
	markedAt   uint64
	refreshing bool
	retryAt    time.Time
}

// Store fronts the handlers with a tag and path index, single-flight
// computation and stale-while-revalidate refresh.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use.
//   - Lookup never blocks on a refresh.
//   - Handler failures surface as ErrStoreUnavailable.
//   - Invalidations are visible to every Lookup that starts after they return.
//   - A refresh or computation that began before an invalidation stores its
//     value still marked.
type Store struct {
	handlers map[Kind]Handler
	distinct []Handler
	guard    *resilience.Guard
	limiter  *resilience.Limiter
	now      func() time.Time
	logger   observe.Logger
	metrics  observe.Metrics

	// gate is held shared by index writers and exclusively by Rebuild.
	gate       sync.RWMutex
	rebuilding atomic.Bool
	locks      [keyLocks]sync.Mutex

	mu      sync.RWMutex
	records map[Key]*record
	keys    map[uint32]Key
	nextOrd uint32
	gen     uint64
	// marks counts invalidation marks; record.markedAt holds its value at
	// the record's latest mark.
	marks uint64

	tags  *tagIndex
	paths *pathIndex

	flight    singleflight.Group
	refreshes sync.WaitGroup
}

// NewStore creates a Store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NoopMetrics()
	}
	if cfg.Guard == nil {
		cfg.Guard = resilience.NewGuard(resilience.GuardConfig{})
	}
	if cfg.RefreshLimiter == nil {
		cfg.RefreshLimiter = resilience.NewLimiter(resilience.LimiterConfig{})
	}

	handlers := make(map[Kind]Handler, len(Kinds()))
	for k, h := range cfg.Handlers {
		if h != nil {
			handlers[k] = h
		}
	}
	if handlers[KindPublic] == nil {
		handlers[KindPublic] = NewMemoryHandler(MemoryConfig{Now: cfg.Now})
	}

	return &Store{
		handlers: handlers,
		distinct: distinctHandlers(handlers),
		guard:    cfg.Guard,
		limiter:  cfg.RefreshLimiter,
		now:      cfg.Now,
		logger:   cfg.Logger.With(observe.F("component", "cache.store")),
		metrics:  cfg.Metrics,
		records:  make(map[Key]*record),
		keys:     make(map[uint32]Key),
		tags:     newTagIndex(cfg.Stripes),
		paths:    newPathIndex(),
	}
}

// distinctHandlers returns each configured handler once, in kind order.
func distinctHandlers(m map[Kind]Handler) []Handler {
	var out []Handler
	for _, k := range Kinds() {
		h, ok := m[k]
		if !ok {
			continue
		}
		dup := false
		if reflect.TypeOf(h).Comparable() {
			for _, seen := range out {
				if reflect.TypeOf(seen).Comparable() && seen == h {
					dup = true
					break
				}
			}
		}
		if !dup {
			out = append(out, h)
		}
	}
	return out
}

func (s *Store) handlerFor(k Kind) Handler {
	if h, ok := s.handlers[k]; ok {
		return h
	}
	return s.handlers[KindPublic]
}

func (s *Store) keyLock(key Key) *sync.Mutex {
	return &s.locks[key.sum[0]%keyLocks]
}

func lookupMeta(key Key) observe.OpMeta {
	return observe.OpMeta{Op: "lookup", Kind: key.Kind().String()}
}

// Lookup returns the stored entry for key with its freshness. A miss is
// Result{Hit: false} with a nil error.
func (s *Store) Lookup(ctx context.Context, key Key) (Result, error) {
	s.mu.RLock()
	var gen uint64
	if rec, ok := s.records[key]; ok {
		gen = rec.gen
	}
	s.mu.RUnlock()

	var entry *Entry
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.handlerFor(key.Kind()).Get(ctx, key)
		return err
	})
	if err != nil {
		s.metrics.RecordLookup(ctx, lookupMeta(key), observe.OutcomeError)
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if entry == nil {
		s.forget(key, gen)
		s.metrics.RecordLookup(ctx, lookupMeta(key), observe.OutcomeMiss)
		return Result{}, nil
	}
	entry.Key = key
	entry.Kind = key.Kind()

	s.mu.RLock()
	rec := s.records[key]
	current := rec != nil && rec.createdAt.Equal(entry.CreatedAt)
	if current && rec.mark > entry.Invalidation {
		entry.Invalidation = rec.mark
	}
	s.mu.RUnlock()

	if !current {
		s.adopt(entry)
	}

	f := Resolve(entry, s.now())
	outcome := observe.OutcomeHit
	switch f {
	case StaleServeAndRefresh:
		outcome = observe.OutcomeStale
	case ExpiredMustRecompute:
		outcome = observe.OutcomeMiss
	}
	s.metrics.RecordLookup(ctx, lookupMeta(key), outcome)

	return Result{Entry: entry, Hit: true, Freshness: f}, nil
}

// Set stores value under key and indexes its tags and paths, replacing any
// previous entry and clearing its invalidation mark. Profiles with a zero
// Expire are not stored. The returned entry is owned by the caller and is
// valid even when the write failed.
func (s *Store) Set(ctx context.Context, key Key, value []byte, meta Meta) (*Entry, error) {
	return s.set(ctx, key, value, meta, math.MaxUint64)
}

// markEpoch returns the current mark count, to be passed to set by
// computations that may outlive an invalidation.
func (s *Store) markEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marks
}

// set is Set for a value computed from state read at mark epoch since. A
// mark the record received after since survives the write, since the value
// may predate the invalidation.
func (s *Store) set(ctx context.Context, key Key, value []byte, meta Meta, since uint64) (*Entry, error) {
	if err := meta.Profile.Validate(); err != nil {
		return nil, err
	}
	for _, t := range meta.Tags {
		if err := ValidateTag(t); err != nil {
			return nil, fmt.Errorf("tag %q: %w", t, err)
		}
	}

	entry := &Entry{
		Key:       key,
		Value:     slices.Clone(value),
		Tags:      dedupeTags(meta.Tags),
		Paths:     normalizePaths(meta.Paths),
		Profile:   meta.Profile,
		CreatedAt: s.now().Round(0),
		Kind:      key.Kind(),
	}
	if !meta.Profile.Cacheable() {
		return entry, nil
	}

	if s.rebuilding.Load() {
		return entry, ErrTagIndexCorrupt
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	if rec, ok := s.records[key]; ok && rec.markedAt > since {
		entry.Invalidation = rec.mark
	}
	s.mu.RUnlock()

	err := s.guard.Do(ctx, func(ctx context.Context) error {
		return s.handlerFor(key.Kind()).Set(ctx, key, entry)
	})
	if err != nil {
		return entry, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.indexLocked(key, entry, since); err != nil {
		return entry, err
	}
	return entry, nil
}

// adopt indexes an entry written by another process into a shared handler.
func (s *Store) adopt(entry *Entry) {
	if s.rebuilding.Load() {
		return
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	l := s.keyLock(entry.Key)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	rec := s.records[entry.Key]
	newer := rec == nil || entry.CreatedAt.After(rec.createdAt)
	s.mu.RUnlock()
	if newer {
		_ = s.indexLocked(entry.Key, entry, math.MaxUint64)
	}
}

// indexLocked records entry in the index. Callers hold gate shared and the
// key lock. The record keeps a mark newer than since.
func (s *Store) indexLocked(key Key, entry *Entry, since uint64) error {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		if s.nextOrd == math.MaxUint32 {
			s.mu.Unlock()
			go s.Rebuild(context.Background())
			return ErrTagIndexCorrupt
		}
		rec = &record{ord: s.nextOrd}
		s.nextOrd++
		s.records[key] = rec
		s.keys[rec.ord] = key
	}
	oldTags, oldPaths := rec.tags, rec.paths
	s.gen++
	rec.gen = s.gen
	rec.tags = slices.Clone(entry.Tags)
	rec.paths = slices.Clone(entry.Paths)
	rec.createdAt = entry.CreatedAt
	rec.profile = entry.Profile
	if rec.markedAt > since {
		rec.mark = max(rec.mark, entry.Invalidation)
		entry.Invalidation = rec.mark
	} else {
		rec.mark = entry.Invalidation
		rec.markedAt = 0
	}
	rec.retryAt = time.Time{}
	ord := rec.ord
	s.mu.Unlock()

	for _, t := range oldTags {
		if !slices.Contains(entry.Tags, t) {
			s.tags.remove(t, ord)
		}
	}
	for _, t := range entry.Tags {
		s.tags.add(t, ord)
	}
	for _, p := range oldPaths {
		if !slices.Contains(entry.Paths, p) {
			s.paths.remove(p, key)
		}
	}
	for _, p := range entry.Paths {
		s.paths.add(p, key)
	}
	return nil
}

// unindexLocked drops key from the index. Index memberships go before the
// record so every ordinal in a tag bucket always resolves to a record.
func (s *Store) unindexLocked(key Key) bool {
	s.mu.RLock()
	rec, ok := s.records[key]
	var ord uint32
	var tags []Tag
	var paths []string
	if ok {
		ord, tags, paths = rec.ord, rec.tags, rec.paths
	}
	s.mu.RUnlock()
	if !ok {
		return false
	}

	for _, t := range tags {
		s.tags.remove(t, ord)
	}
	for _, p := range paths {
		s.paths.remove(p, key)
	}

	s.mu.Lock()
	delete(s.records, key)
	delete(s.keys, ord)
	s.mu.Unlock()
	return true
}

// forget drops the record of a key its handler no longer holds, unless the
// record was rewritten after the lookup began.
func (s *Store) forget(key Key, gen uint64) {
	if s.rebuilding.Load() {
		return
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	rec, ok := s.records[key]
	stale := ok && rec.gen == gen
	s.mu.RUnlock()
	if stale {
		s.unindexLocked(key)
	}
}

// InvalidateByTag marks every entry carrying tag and returns how many were
// marked. Unknown tags mark nothing and return 0, nil.
func (s *Store) InvalidateByTag(ctx context.Context, tag Tag, mode Mode) (int, error) {
	if err := ValidateTag(tag); err != nil {
		return 0, err
	}

	n, corrupt := s.markTag(tag, mode)
	if corrupt {
		s.logger.Error(ctx, "tag index inconsistent, rebuilding", observe.F("tag", string(tag)))
		if err := s.Rebuild(ctx); err != nil {
			return 0, err
		}
		n, _ = s.markTag(tag, mode)
	}

	for _, h := range s.distinct {
		err := s.guard.Do(ctx, func(ctx context.Context) error {
			return h.ExpireTags(ctx, []Tag{tag}, mode)
		})
		if err != nil {
			s.logger.Warn(ctx, "handler tag expiry failed",
				observe.F("tag", string(tag)), observe.F("error", err))
		}
	}

	s.metrics.RecordInvalidation(ctx, observe.OpMeta{Op: "invalidate", Target: string(tag)}, n)
	return n, nil
}

func (s *Store) markTag(tag Tag, mode Mode) (n int, corrupt bool) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	ords := s.tags.members(tag)
	mark := invalidationFor(mode)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ord := range ords {
		key, ok := s.keys[ord]
		if !ok {
			corrupt = true
			continue
		}
		s.markLocked(s.records[key], mark)
		n++
	}
	return n, corrupt
}

func (s *Store) markLocked(rec *record, mark Invalidation) {
	if rec.mark < mark {
		rec.mark = mark
	}
	s.marks++
	rec.markedAt = s.marks
	rec.retryAt = time.Time{}
}

// InvalidateByPath marks every entry rendered at path, or below it for
// GranularityLayout, and returns how many were marked.
func (s *Store) InvalidateByPath(ctx context.Context, path string, g Granularity, mode Mode) (int, error) {
	path = NormalizePath(path)
	mark := invalidationFor(mode)

	s.gate.RLock()
	keys := s.paths.match(path, g)
	n := 0
	s.mu.Lock()
	for _, key := range keys {
		if rec, ok := s.records[key]; ok {
			s.markLocked(rec, mark)
			n++
		}
	}
	s.mu.Unlock()
	s.gate.RUnlock()

	for _, h := range s.distinct {
		err := s.guard.Do(ctx, func(ctx context.Context) error {
			return h.ExpirePaths(ctx, []string{path}, g)
		})
		if err != nil {
			s.logger.Warn(ctx, "handler path expiry failed",
				observe.F("path", path), observe.F("error", err))
		}
	}

	s.metrics.RecordInvalidation(ctx, observe.OpMeta{Op: "invalidate", Target: path}, n)
	return n, nil
}

// Evict removes key from the index and its handler.
func (s *Store) Evict(ctx context.Context, key Key) error {
	if s.rebuilding.Load() {
		return ErrTagIndexCorrupt
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.unindexLocked(key)

	d, ok := s.handlerFor(key.Kind()).(Deleter)
	if !ok {
		return fmt.Errorf("%w: kind %s", ErrEvictUnsupported, key.Kind())
	}
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		return d.Delete(ctx, key)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// EvictTag removes every key carrying tag and returns how many were removed.
func (s *Store) EvictTag(ctx context.Context, tag Tag) (int, error) {
	s.gate.RLock()
	ords := s.tags.members(tag)
	keys := make([]Key, 0, len(ords))
	s.mu.RLock()
	for _, ord := range ords {
		if key, ok := s.keys[ord]; ok {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()
	s.gate.RUnlock()

	var errs []error
	n := 0
	for _, key := range keys {
		if err := s.Evict(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// GetOrCompute returns the entry for key, computing it on a miss. Concurrent
// misses on one key share a single computation. A stale entry is returned
// immediately while one background refresh runs. If the store is unavailable
// the value is computed and returned without being stored.
//
// The computation runs detached from ctx cancellation so that other waiters
// and the cache still receive its result; ctx only bounds how long this
// caller waits.
func (s *Store) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (*Entry, Outcome, error) {
	res, err := s.Lookup(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "lookup failed, computing", observe.F("key", key.String()), observe.F("error", err))
	}
	if err == nil && res.Hit {
		switch res.Freshness {
		case Fresh:
			return res.Entry, OutcomeHit, nil
		case StaleServeAndRefresh:
			s.refresh(ctx, key, compute)
			return res.Entry, OutcomeStale, nil
		}
	}

	entry, err := s.computeShared(ctx, key, compute)
	if err != nil {
		return nil, OutcomeMiss, err
	}
	return entry, OutcomeMiss, nil
}

func (s *Store) computeShared(ctx context.Context, key Key, compute ComputeFunc) (*Entry, error) {
	ch := s.flight.DoChan(key.String(), func() (any, error) {
		cctx := context.WithoutCancel(ctx)
		since := s.markEpoch()
		if res, err := s.Lookup(cctx, key); err == nil && res.Hit && res.Freshness == Fresh {
			return res.Entry, nil
		}

		value, meta, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		entry, err := s.set(cctx, key, value, meta, since)
		if err != nil {
			if entry == nil {
				return nil, err
			}
			s.logger.Warn(cctx, "cache write failed, serving computed value",
				observe.F("key", key.String()), observe.F("error", err))
		}
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Entry).Clone(), nil
	}
}

// refresh starts one background recomputation of key unless one is running,
// the last failure is still inside its refresh window, or the refresh
// limiter is full.
func (s *Store) refresh(ctx context.Context, key Key, compute ComputeFunc) {
	now := s.now()

	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok || rec.refreshing || now.Before(rec.retryAt) || !s.limiter.TryAcquire() {
		s.mu.Unlock()
		return
	}
	rec.refreshing = true
	window := rec.profile.RefreshWindow()
	since := s.marks
	s.mu.Unlock()

	rctx := context.WithoutCancel(ctx)
	s.refreshes.Add(1)
	go func() {
		defer s.refreshes.Done()
		defer s.limiter.Release()

		start := time.Now()
		_, err, _ := s.flight.Do(key.String(), func() (any, error) {
			value, meta, err := compute(rctx)
			if err != nil {
				return nil, err
			}
			return s.set(rctx, key, value, meta, since)
		})

		s.mu.Lock()
		if rec, ok := s.records[key]; ok {
			rec.refreshing = false
			if err != nil {
				rec.retryAt = s.now().Add(window)
			}
		}
		s.mu.Unlock()

		meta := observe.OpMeta{Op: "refresh", Kind: key.Kind().String()}
		s.metrics.RecordOperation(rctx, meta, time.Since(start), err)
		if err != nil {
			s.logger.Warn(rctx, "stale refresh failed, serving previous value",
				observe.F("key", key.String()), observe.F("retry_in", window.String()), observe.F("error", err))
		}
	}()
}

// Drain waits for in-flight background refreshes or until ctx is done.
func (s *Store) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.refreshes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rebuild recreates the tag and path index from the entry records. Writes
// fail with ErrTagIndexCorrupt while it runs.
func (s *Store) Rebuild(ctx context.Context) error {
	if !s.rebuilding.CompareAndSwap(false, true) {
		return nil
	}
	defer s.rebuilding.Store(false)

	s.gate.Lock()
	defer s.gate.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tags.reset()
	s.paths.reset()
	s.keys = make(map[uint32]Key, len(s.records))

	var ord uint32
	for key, rec := range s.records {
		rec.ord = ord
		s.keys[ord] = key
		for _, t := range rec.tags {
			s.tags.add(t, ord)
		}
		for _, p := range rec.paths {
			s.paths.add(p, key)
		}
		ord++
	}
	s.nextOrd = ord

	s.logger.Info(ctx, "tag index rebuilt", observe.F("entries", len(s.records)), observe.F("tags", s.tags.size()))
	return nil
}

// CheckIndex verifies that the tag and path index agree with the entry
// records. On disagreement it rebuilds the index and returns
// ErrTagIndexCorrupt.
func (s *Store) CheckIndex(ctx context.Context) error {
	s.gate.Lock()
	problem := s.verifyLocked()
	s.gate.Unlock()

	if problem == "" {
		return nil
	}
	s.logger.Error(ctx, "tag index inconsistent, rebuilding", observe.F("problem", problem))
	if err := s.Rebuild(ctx); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s (rebuilt)", ErrTagIndexCorrupt, problem)
}

func (s *Store) verifyLocked() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, rec := range s.records {
		if s.keys[rec.ord] != key {
			return fmt.Sprintf("ordinal %d does not map back to %s", rec.ord, key)
		}
		for _, t := range rec.tags {
			if !s.tags.contains(t, rec.ord) {
				return fmt.Sprintf("tag %q missing %s", t, key)
			}
		}
		for _, p := range rec.paths {
			if !s.paths.contains(p, key) {
				return fmt.Sprintf("path %q missing %s", p, key)
			}
		}
	}

	var problem string
	s.tags.each(func(tag Tag, ords []uint32) {
		if problem != "" {
			return
		}
		for _, ord := range ords {
			key, ok := s.keys[ord]
			if !ok || !slices.Contains(s.records[key].tags, tag) {
				problem = fmt.Sprintf("tag %q holds stale ordinal %d", tag, ord)
				return
			}
		}
	})
	return problem
}

// Ping checks every handler that exposes a backend.
func (s *Store) Ping(ctx context.Context) error {
	if st := s.guard.Breaker().State(); st == resilience.StateOpen {
		return fmt.Errorf("%w: circuit %s", ErrStoreUnavailable, st)
	}
	var errs []error
	for _, h := range s.distinct {
		if p, ok := h.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Stats is a snapshot of index sizes.
type Stats struct {
	Entries    int
	Tags       int
	Refreshing int
	Rebuilding bool
}

// Stats returns a snapshot of index sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Entries: len(s.records), Tags: s.tags.size(), Rebuilding: s.rebuilding.Load()}
	for _, rec := range s.records {
		if rec.refreshing {
			st.Refreshing++
		}
	}
	return st
}

// Handlers returns the distinct configured handlers.
func (s *Store) Handlers() []Handler {
	return slices.Clone(s.distinct)
}

func dedupeTags(tags []Tag) []Tag {
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if n := NormalizePath(p); !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
