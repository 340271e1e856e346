package revalidate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/directive"
	"github.com/jonwraymond/rendercache/observe"
)

// Listener is notified after a request has been applied.
type Listener func(ctx context.Context, a Applied)

// RouterConfig configures a Router.
type RouterConfig struct {
	Store      *cache.Store
	Middleware *observe.Middleware
	Logger     observe.Logger
	// Now returns the time stamped on applied requests. Default: time.Now.
	Now func() time.Time
}

// Router applies invalidation requests to a Store.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Submit validates every request before applying any.
//   - Listeners run synchronously after each applied request, in
//     subscription order, and must not block.
type Router struct {
	store  *cache.Store
	mw     *observe.Middleware
	logger observe.Logger
	now    func() time.Time

	mu        sync.RWMutex
	listeners []subscription
	nextSub   int
}

type subscription struct {
	id int
	fn Listener
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NopMiddleware()
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Router{
		store:  cfg.Store,
		mw:     cfg.Middleware,
		logger: cfg.Logger.With(observe.F("component", "revalidate")),
		now:    cfg.Now,
	}, nil
}

// Subscribe registers fn and returns a function that removes it.
func (r *Router) Subscribe(fn Listener) (unsubscribe func()) {
	r.mu.Lock()
	r.nextSub++
	id := r.nextSub
	r.listeners = append(r.listeners, subscription{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, s := range r.listeners {
				if s.id == id {
					r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Submit applies reqs. Requests with the same target are coalesced into the
// first one, which expires now if any of them does. Store errors are joined
// into the returned error; the report covers every request applied.
func (r *Router) Submit(ctx context.Context, reqs ...*Request) (Report, error) {
	for _, req := range reqs {
		if req == nil {
			return Report{}, fmt.Errorf("%w: nil request", ErrInvalidRequest)
		}
		if err := req.Validate(); err != nil {
			return Report{}, err
		}
	}

	// Claim every request before applying any. A batch holding a consumed
	// request releases its claims.
	for i, req := range reqs {
		if !req.consumed.CompareAndSwap(false, true) {
			for _, claimed := range reqs[:i] {
				claimed.consumed.Store(false)
			}
			return Report{}, fmt.Errorf("%w: %s", ErrAlreadyConsumed, req.ID)
		}
	}

	var (
		report Report
		batch  []*Request
		seen   = make(map[string]*Request)
	)
	for _, req := range reqs {
		if req.Kind == ByTime {
			report.Skipped++
			continue
		}
		if first, ok := seen[req.dedupeKey()]; ok {
			first.ExpireNow = first.ExpireNow || req.ExpireNow
			report.Coalesced++
			continue
		}
		seen[req.dedupeKey()] = req
		batch = append(batch, req)
	}

	var errs []error
	for _, req := range batch {
		a, err := r.apply(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Applied = append(report.Applied, a)
		r.notify(ctx, a)
	}
	return report, errors.Join(errs...)
}

func (r *Router) apply(ctx context.Context, req *Request) (Applied, error) {
	var n int
	meta := observe.OpMeta{Op: "revalidate", Kind: req.Kind.String(), Target: req.Target}
	err := r.mw.Run(ctx, meta, func(ctx context.Context) error {
		var err error
		switch req.Kind {
		case ByTag:
			n, err = r.store.InvalidateByTag(ctx, cache.Tag(req.Target), req.Mode())
		case ByPath:
			n, err = r.store.InvalidateByPath(ctx, req.Target, req.Granularity, req.Mode())
		}
		return err
	})
	if err != nil {
		return Applied{}, fmt.Errorf("revalidate %s %q: %w", req.Kind, req.Target, err)
	}

	r.logger.Info(ctx, "revalidation applied",
		observe.F("kind", req.Kind.String()),
		observe.F("target", req.Target),
		observe.F("expire_now", req.ExpireNow),
		observe.F("affected", n))

	return Applied{
		ID:          req.ID,
		Kind:        req.Kind,
		Target:      req.Target,
		ExpireNow:   req.ExpireNow,
		Granularity: req.Granularity,
		Affected:    n,
		At:          r.now(),
	}, nil
}

func (r *Router) notify(ctx context.Context, a Applied) {
	r.mu.RLock()
	subs := make([]subscription, len(r.listeners))
	copy(subs, r.listeners)
	r.mu.RUnlock()

	for _, s := range subs {
		s.fn(ctx, a)
	}
}

func (r *Router) submitOne(ctx context.Context, req *Request) (int, error) {
	if directive.InScope(ctx) {
		return 0, directive.ErrInsideCacheScope
	}
	report, err := r.Submit(ctx, req)
	return report.Affected(), err
}

// InvalidateTag invalidates every entry carrying tag and returns how many
// were marked. It must be called from request-handling code.
func (r *Router) InvalidateTag(ctx context.Context, tag cache.Tag, mode cache.Mode) (int, error) {
	return r.submitOne(ctx, NewTagRequest(tag, mode == cache.ModeImmediate))
}

// InvalidatePath lazily invalidates every entry rendered at path, or below it
// for GranularityLayout. It must be called from request-handling code.
func (r *Router) InvalidatePath(ctx context.Context, path string, g cache.Granularity) (int, error) {
	return r.submitOne(ctx, NewPathRequest(path, g, false))
}

// ExpireTag invalidates every entry carrying tag so the next lookup recomputes.
func (r *Router) ExpireTag(ctx context.Context, tag cache.Tag) (int, error) {
	return r.InvalidateTag(ctx, tag, cache.ModeImmediate)
}

// ExpirePath invalidates every entry at path so the next lookup recomputes.
func (r *Router) ExpirePath(ctx context.Context, path string, g cache.Granularity) (int, error) {
	return r.submitOne(ctx, NewPathRequest(path, g, true))
}

// UnstableExpireTag is the legacy name of ExpireTag.
//
// Deprecated: use ExpireTag.
func (r *Router) UnstableExpireTag(ctx context.Context, tag cache.Tag) (int, error) {
	directive.WarnDeprecated(ctx, "UnstableExpireTag", "ExpireTag")
	return r.ExpireTag(ctx, tag)
}

// UnstableExpirePath is the legacy name of ExpirePath.
//
// Deprecated: use ExpirePath.
func (r *Router) UnstableExpirePath(ctx context.Context, path string, g cache.Granularity) (int, error) {
	directive.WarnDeprecated(ctx, "UnstableExpirePath", "ExpirePath")
	return r.ExpirePath(ctx, path, g)
}
