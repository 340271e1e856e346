package directive

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/scope"
)

// Body produces the value of a cacheable call.
type Body func(ctx context.Context) ([]byte, error)

// CacheableCall is one invocation of a function marked cacheable.
type CacheableCall struct {
	// Function is the stable identity of the function.
	Function string
	Kind     cache.Kind
	Args     []any
	Closure  map[string]any
	// Excluded lists indexes into Args that must not affect the key.
	Excluded []int
	// Profile names the initial cache-life profile. Default: "default".
	Profile string
	// Tags are attached before the body runs.
	Tags []cache.Tag
	// Paths are the route paths the result is rendered at.
	Paths []string
	Body  Body
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Store *cache.Store
	// Deriver defaults to NewDeriver("").
	Deriver *cache.Deriver
	// Profiles defaults to the built-in profiles.
	Profiles   *cache.Profiles
	Middleware *observe.Middleware
	Logger     observe.Logger
}

// Runner executes cacheable calls.
//
// Contract:
//   - Concurrency: Run is safe for concurrent use.
//   - Errors: body errors are returned unchanged and never cached. Store
//     failures degrade to running the body.
type Runner struct {
	store    *cache.Store
	deriver  *cache.Deriver
	profiles *cache.Profiles
	mw       *observe.Middleware
	logger   observe.Logger

	bypassWarned sync.Map
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	if cfg.Deriver == nil {
		cfg.Deriver = cache.NewDeriver("")
	}
	if cfg.Profiles == nil {
		p, err := cache.NewProfiles(nil)
		if err != nil {
			return nil, err
		}
		cfg.Profiles = p
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NopMiddleware()
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Runner{
		store:    cfg.Store,
		deriver:  cfg.Deriver,
		profiles: cfg.Profiles,
		mw:       cfg.Middleware,
		logger:   cfg.Logger.With(observe.F("component", "directive")),
	}, nil
}

// Profiles returns the profile registry scopes resolve names against.
func (r *Runner) Profiles() *cache.Profiles { return r.profiles }

// Store returns the underlying store.
func (r *Runner) Store() *cache.Store { return r.store }

// Run returns the value of call, from the request cache or the Store when
// possible and by running its body otherwise.
func (r *Runner) Run(ctx context.Context, call CacheableCall) ([]byte, error) {
	var out []byte
	meta := observe.OpMeta{Op: "directive", Kind: call.Kind.String(), Target: call.Function}
	err := r.mw.Run(ctx, meta, func(ctx context.Context) error {
		var err error
		out, err = r.run(ctx, call)
		return err
	})
	return out, err
}

func (r *Runner) run(ctx context.Context, call CacheableCall) ([]byte, error) {
	if call.Body == nil {
		return nil, ErrNilBody
	}

	parent := frameFrom(ctx)
	if call.Kind == cache.KindPrivate && parent != nil && parent.kind != cache.KindPrivate {
		return nil, fmt.Errorf("%w: %s inside %s scope", ErrPrivateInsideShared, call.Function, parent.kind)
	}

	name := call.Profile
	if name == "" {
		name = cache.DefaultProfileName
	}
	base, err := r.profiles.Get(name)
	if err != nil {
		return nil, err
	}
	for _, t := range call.Tags {
		if err := cache.ValidateTag(t); err != nil {
			return nil, fmt.Errorf("tag %q: %w", t, err)
		}
	}

	tags := slices.Clone(call.Tags)
	key, err := r.deriver.Derive(cache.Call{
		Function: call.Function,
		Kind:     call.Kind,
		Args:     call.Args,
		Closure:  call.Closure,
		Excluded: call.Excluded,
	})
	if errors.Is(err, cache.ErrNonSerializableArgument) {
		r.warnBypass(ctx, call.Function, err)
		return r.runUncached(ctx, call, base, tags, parent)
	}
	if err != nil {
		return nil, err
	}

	if call.Kind == cache.KindPrivate {
		caller := scope.FromContext(ctx)
		if caller == nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingCaller, scope.ErrNoCaller)
		}
		if len(caller.Secret) == 0 {
			// Secretless callers would all share one scoped key.
			return nil, fmt.Errorf("%w: caller %q has no scope secret", ErrMissingCaller, caller.ID)
		}
		key = key.Scoped(caller.Secret)
		tags = append(tags, cache.Tag(caller.ScopeTag()))
	}

	rc := requestCacheFrom(ctx)
	if e, ok := rc.get(key); ok {
		if parent != nil {
			parent.absorb(e.tags, e.profile)
		}
		return slices.Clone(e.value), nil
	}

	entry, outcome, err := r.store.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, cache.Meta, error) {
		f := newFrame(call.Kind, r.profiles, base, tags)
		value, err := call.Body(withFrame(ctx, f))
		if err != nil {
			return nil, cache.Meta{}, err
		}
		return value, f.meta(call.Paths), nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug(ctx, "cacheable call resolved",
		observe.F("function", call.Function), observe.F("outcome", outcome.String()))

	if parent != nil {
		parent.absorb(entry.Tags, entry.Profile)
	}
	rc.put(key, entry)
	return entry.Value, nil
}

// runUncached runs the body inside a scope so in-body calls still work, and
// hands the scope's metadata to the parent without storing anything.
func (r *Runner) runUncached(ctx context.Context, call CacheableCall, base cache.Profile, tags []cache.Tag, parent *frame) ([]byte, error) {
	f := newFrame(call.Kind, r.profiles, base, tags)
	value, err := call.Body(withFrame(ctx, f))
	if err != nil {
		return nil, err
	}
	if parent != nil {
		m := f.meta(nil)
		parent.absorb(m.Tags, m.Profile)
	}
	return value, nil
}

func (r *Runner) warnBypass(ctx context.Context, function string, err error) {
	if _, loaded := r.bypassWarned.LoadOrStore(function, struct{}{}); loaded {
		return
	}
	r.logger.Warn(ctx, "argument not serializable, running uncached",
		observe.F("function", function), observe.F("error", err))
}

// EndCallerScope evicts every private entry produced for caller and returns
// how many were removed.
func (r *Runner) EndCallerScope(ctx context.Context, caller *scope.Caller) (int, error) {
	if caller == nil {
		return 0, scope.ErrNoCaller
	}
	return r.store.EvictTag(ctx, cache.Tag(caller.ScopeTag()))
}
