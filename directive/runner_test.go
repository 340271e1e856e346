package directive

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/scope"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{Store: cache.NewStore(cache.StoreConfig{}), Deriver: cache.NewDeriver("test")})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

// counted returns a body that counts its runs and returns value.
func counted(calls *atomic.Int32, value string) Body {
	return func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(value), nil
	}
}

func TestNewRunner_RequiresStore(t *testing.T) {
	if _, err := NewRunner(RunnerConfig{}); !errors.Is(err, ErrMissingStore) {
		t.Errorf("NewRunner() error = %v, want %v", err, ErrMissingStore)
	}
}

func TestRunner_MissThenHit(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	var calls atomic.Int32
	call := CacheableCall{Function: "app.Products", Args: []any{"shoes"}, Body: counted(&calls, "list")}

	for i := 0; i < 3; i++ {
		got, err := r.Run(ctx, call)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if string(got) != "list" {
			t.Errorf("Run() = %q, want %q", got, "list")
		}
	}
	if calls.Load() != 1 {
		t.Errorf("body calls = %d, want 1", calls.Load())
	}

	call.Args = []any{"boots"}
	_, _ = r.Run(ctx, call)
	if calls.Load() != 2 {
		t.Errorf("body calls after new args = %d, want 2", calls.Load())
	}
}

func TestRunner_InBodyTagsAndProfile(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	var calls atomic.Int32
	call := CacheableCall{
		Function: "app.Post",
		Args:     []any{42},
		Tags:     []cache.Tag{"posts"},
		Body: func(ctx context.Context) ([]byte, error) {
			calls.Add(1)
			if err := AddTag(ctx, "post:42"); err != nil {
				return nil, err
			}
			if err := UseProfile(ctx, "minutes"); err != nil {
				return nil, err
			}
			if kind, ok := ActiveKind(ctx); !ok || kind != cache.KindPublic {
				t.Errorf("ActiveKind() = (%v, %v), want (public, true)", kind, ok)
			}
			return []byte("post"), nil
		},
	}

	if _, err := r.Run(ctx, call); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	n, err := r.Store().InvalidateByTag(ctx, "post:42", cache.ModeImmediate)
	if err != nil || n != 1 {
		t.Fatalf("InvalidateByTag(post:42) = (%d, %v), want (1, nil)", n, err)
	}
	if _, err := r.Run(ctx, call); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("body calls = %d, want 2", calls.Load())
	}

	if n, _ := r.Store().InvalidateByTag(ctx, "posts", cache.ModeImmediate); n != 1 {
		t.Errorf("InvalidateByTag(posts) = %d, want 1", n)
	}
}

func TestRunner_InScopeAPIOutsideScope(t *testing.T) {
	ctx := context.Background()

	if err := AddTag(ctx, "x"); !errors.Is(err, ErrOutsideCacheScope) {
		t.Errorf("AddTag() error = %v, want %v", err, ErrOutsideCacheScope)
	}
	if err := SetProfile(ctx, cache.Profile{}); !errors.Is(err, ErrOutsideCacheScope) {
		t.Errorf("SetProfile() error = %v, want %v", err, ErrOutsideCacheScope)
	}
	if err := UseProfile(ctx, "hours"); !errors.Is(err, ErrOutsideCacheScope) {
		t.Errorf("UseProfile() error = %v, want %v", err, ErrOutsideCacheScope)
	}
	if InScope(ctx) {
		t.Error("InScope() = true outside a body")
	}
}

func TestRunner_InScopeValidation(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	tests := []struct {
		name    string
		body    Body
		wantErr error
	}{
		{
			name:    "invalid tag",
			body:    func(ctx context.Context) ([]byte, error) { return nil, AddTag(ctx, "") },
			wantErr: cache.ErrInvalidTag,
		},
		{
			name: "invalid profile",
			body: func(ctx context.Context) ([]byte, error) {
				return nil, SetProfile(ctx, cache.Profile{Stale: time.Hour, Revalidate: time.Minute, Expire: time.Hour})
			},
			wantErr: cache.ErrInvalidProfile,
		},
		{
			name:    "unknown profile",
			body:    func(ctx context.Context) ([]byte, error) { return nil, UseProfile(ctx, "fortnightly") },
			wantErr: cache.ErrUnknownProfile,
		},
		{
			name:    "force refresh inside scope",
			body:    func(ctx context.Context) ([]byte, error) { return nil, ForceRefreshCurrentRequest(ctx) },
			wantErr: ErrInsideCacheScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(ctx, CacheableCall{Function: "validate." + tt.name, Body: tt.body})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := r.Run(ctx, CacheableCall{Function: "f"}); !errors.Is(err, ErrNilBody) {
		t.Errorf("Run(no body) error = %v, want %v", err, ErrNilBody)
	}
	if _, err := r.Run(ctx, CacheableCall{Function: "f", Profile: "nope", Body: counted(new(atomic.Int32), "")}); !errors.Is(err, cache.ErrUnknownProfile) {
		t.Errorf("Run(unknown profile) error = %v, want %v", err, cache.ErrUnknownProfile)
	}
}

func TestRunner_NestedScopesPropagate(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	var outerCalls, innerCalls atomic.Int32
	inner := CacheableCall{
		Function: "app.Price",
		Body: func(ctx context.Context) ([]byte, error) {
			innerCalls.Add(1)
			if err := AddTag(ctx, "prices"); err != nil {
				return nil, err
			}
			return []byte("$10"), nil
		},
	}
	outer := CacheableCall{
		Function: "app.ProductCard",
		Tags:     []cache.Tag{"cards"},
		Body: func(ctx context.Context) ([]byte, error) {
			outerCalls.Add(1)
			price, err := r.Run(ctx, inner)
			if err != nil {
				return nil, err
			}
			return append([]byte("card "), price...), nil
		},
	}

	got, err := r.Run(ctx, outer)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(got) != "card $10" {
		t.Errorf("Run() = %q, want %q", got, "card $10")
	}

	// Recompute only the outer scope: the inner call is a hit and must still
	// contribute its tag.
	if n, _ := r.Store().InvalidateByTag(ctx, "cards", cache.ModeImmediate); n != 1 {
		t.Fatalf("InvalidateByTag(cards) = %d, want 1", n)
	}
	_, _ = r.Run(ctx, outer)
	if outerCalls.Load() != 2 || innerCalls.Load() != 1 {
		t.Fatalf("calls = (outer %d, inner %d), want (2, 1)", outerCalls.Load(), innerCalls.Load())
	}

	n, _ := r.Store().InvalidateByTag(ctx, "prices", cache.ModeImmediate)
	if n != 2 {
		t.Errorf("InvalidateByTag(prices) = %d, want 2 (inner and outer)", n)
	}
	_, _ = r.Run(ctx, outer)
	if outerCalls.Load() != 3 || innerCalls.Load() != 2 {
		t.Errorf("calls = (outer %d, inner %d), want (3, 2)", outerCalls.Load(), innerCalls.Load())
	}
}

func TestRunner_NestedProfileTightens(t *testing.T) {
	ctx := context.Background()
	clockNow := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clockNow }
	r, _ := NewRunner(RunnerConfig{Store: cache.NewStore(cache.StoreConfig{Now: now})})

	var outerCalls atomic.Int32
	inner := CacheableCall{Function: "inner", Profile: "seconds", Body: counted(new(atomic.Int32), "i")}
	outer := CacheableCall{
		Function: "outer",
		Profile:  "days",
		Body: func(ctx context.Context) ([]byte, error) {
			outerCalls.Add(1)
			return r.Run(ctx, inner)
		},
	}

	_, _ = r.Run(ctx, outer)
	clockNow = clockNow.Add(2 * time.Minute) // past "seconds" expire, well within "days"
	_, _ = r.Run(ctx, outer)

	if outerCalls.Load() != 2 {
		t.Errorf("outer calls = %d, want 2 (outer must inherit the inner expire)", outerCalls.Load())
	}
}

func TestRunner_PrivateScopes(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	var calls atomic.Int32
	call := CacheableCall{Function: "account.Summary", Kind: cache.KindPrivate, Body: counted(&calls, "summary")}

	if _, err := r.Run(ctx, call); !errors.Is(err, ErrMissingCaller) {
		t.Fatalf("Run() without caller error = %v, want %v", err, ErrMissingCaller)
	}

	x := &scope.Caller{ID: "x", Secret: []byte("secret-x")}
	y := &scope.Caller{ID: "y", Secret: []byte("secret-y")}

	_, _ = r.Run(scope.WithCaller(ctx, x), call)
	_, _ = r.Run(scope.WithCaller(ctx, x), call)
	if calls.Load() != 1 {
		t.Errorf("calls for one caller = %d, want 1", calls.Load())
	}
	_, _ = r.Run(scope.WithCaller(ctx, y), call)
	if calls.Load() != 2 {
		t.Errorf("calls after second caller = %d, want 2", calls.Load())
	}

	n, err := r.EndCallerScope(ctx, x)
	if err != nil {
		t.Fatalf("EndCallerScope() error = %v", err)
	}
	if n != 1 {
		t.Errorf("EndCallerScope() = %d, want 1", n)
	}
	_, _ = r.Run(scope.WithCaller(ctx, x), call)
	_, _ = r.Run(scope.WithCaller(ctx, y), call)
	if calls.Load() != 3 {
		t.Errorf("calls after ending x = %d, want 3", calls.Load())
	}
}

func TestRunner_PrivateScopeRequiresSecret(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	keys, err := scope.NewKeyStore([]scope.APIKey{{ID: "cms", Hash: scope.HashAPIKey("cms-secret")}}, nil)
	if err != nil {
		t.Fatalf("NewKeyStore() error = %v", err)
	}
	keyCaller, err := keys.Authenticate(ctx, "cms-secret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	callers := []*scope.Caller{{ID: "x"}, {ID: "y", Secret: []byte{}}, keyCaller}
	for _, c := range callers {
		t.Run(c.ID, func(t *testing.T) {
			var calls atomic.Int32
			call := CacheableCall{
				Function: "profile",
				Kind:     cache.KindPrivate,
				Body:     counted(&calls, "data-of-"+c.ID),
			}
			got, err := r.Run(scope.WithCaller(ctx, c), call)
			if !errors.Is(err, ErrMissingCaller) {
				t.Errorf("Run() = (%q, %v), want error %v", got, err, ErrMissingCaller)
			}
			if calls.Load() != 0 {
				t.Errorf("body calls = %d, want 0", calls.Load())
			}
		})
	}
	if n := r.Store().Stats().Entries; n != 0 {
		t.Errorf("Stats().Entries = %d, want 0", n)
	}
}

func TestRunner_PrivateInsideShared(t *testing.T) {
	ctx := scope.WithCaller(context.Background(), &scope.Caller{ID: "x", Secret: []byte("s")})
	r := newTestRunner(t)

	private := CacheableCall{Function: "private", Kind: cache.KindPrivate, Body: counted(new(atomic.Int32), "p")}
	shared := CacheableCall{
		Function: "shared",
		Body:     func(ctx context.Context) ([]byte, error) { return r.Run(ctx, private) },
	}
	if _, err := r.Run(ctx, shared); !errors.Is(err, ErrPrivateInsideShared) {
		t.Errorf("Run() error = %v, want %v", err, ErrPrivateInsideShared)
	}

	outerPrivate := CacheableCall{
		Function: "outer-private",
		Kind:     cache.KindPrivate,
		Body:     func(ctx context.Context) ([]byte, error) { return r.Run(ctx, private) },
	}
	if _, err := r.Run(ctx, outerPrivate); err != nil {
		t.Errorf("Run(private inside private) error = %v", err)
	}
}

func TestRunner_NonSerializableRunsUncached(t *testing.T) {
	var buf bytes.Buffer
	r, _ := NewRunner(RunnerConfig{
		Store:  cache.NewStore(cache.StoreConfig{}),
		Logger: observe.NewLoggerWithWriter("debug", &buf),
	})

	var calls atomic.Int32
	call := CacheableCall{Function: "app.Stream", Args: []any{make(chan int)}, Body: counted(&calls, "v")}
	for i := 0; i < 3; i++ {
		got, err := r.Run(context.Background(), call)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if string(got) != "v" {
			t.Errorf("Run() = %q, want %q", got, "v")
		}
	}
	if calls.Load() != 3 {
		t.Errorf("body calls = %d, want 3", calls.Load())
	}
	if got := strings.Count(buf.String(), "running uncached"); got != 1 {
		t.Errorf("bypass warnings = %d, want 1", got)
	}
}

func TestRunner_BodyErrorNotCached(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)
	boom := errors.New("boom")

	var calls atomic.Int32
	call := CacheableCall{Function: "flaky", Body: func(context.Context) ([]byte, error) {
		calls.Add(1)
		return nil, boom
	}}
	for i := 0; i < 2; i++ {
		if _, err := r.Run(ctx, call); !errors.Is(err, boom) {
			t.Errorf("Run() error = %v, want %v", err, boom)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("body calls = %d, want 2", calls.Load())
	}
}

func TestRunner_RequestCache(t *testing.T) {
	r := newTestRunner(t)
	ctx := WithRequestCache(context.Background())

	var calls atomic.Int32
	call := CacheableCall{Function: "app.Cart", Tags: []cache.Tag{"cart"}, Body: counted(&calls, "cart")}

	_, _ = r.Run(ctx, call)
	_, _ = r.Store().InvalidateByTag(ctx, "cart", cache.ModeImmediate)

	_, _ = r.Run(ctx, call)
	if calls.Load() != 1 {
		t.Errorf("calls inside one request = %d, want 1", calls.Load())
	}

	if err := ForceRefreshCurrentRequest(ctx); err != nil {
		t.Fatalf("ForceRefreshCurrentRequest() error = %v", err)
	}
	_, _ = r.Run(ctx, call)
	if calls.Load() != 2 {
		t.Errorf("calls after force refresh = %d, want 2", calls.Load())
	}

	if err := ForceRefreshCurrentRequest(context.Background()); err != nil {
		t.Errorf("ForceRefreshCurrentRequest() without request cache error = %v", err)
	}
}

func TestDeprecations(t *testing.T) {
	var buf bytes.Buffer
	InitDeprecations(observe.NewLoggerWithWriter("debug", &buf), true)
	t.Cleanup(func() { InitDeprecations(nil, false) })

	r := newTestRunner(t)
	body := func(ctx context.Context) ([]byte, error) {
		if err := UnstableCacheTag(ctx, "legacy"); err != nil {
			return nil, err
		}
		if err := UnstableCacheLife(ctx, "hours"); err != nil {
			return nil, err
		}
		return []byte("v"), nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.Run(ctx, CacheableCall{Function: "legacy", Args: []any{i}, Body: body}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if got := strings.Count(buf.String(), "deprecated API used"); got != 2 {
		t.Errorf("warnings = %d, want 2 (one per legacy name)", got)
	}

	// The legacy tag is the same tag, not a second one.
	if n, _ := r.Store().InvalidateByTag(ctx, "legacy", cache.ModeLazy); n != 3 {
		t.Errorf("InvalidateByTag(legacy) = %d, want 3", n)
	}

	ResetDeprecations()
	if !WarnDeprecated(ctx, "UnstableCacheTag", "AddTag") {
		t.Error("WarnDeprecated() after Reset = false, want true")
	}

	quiet := NewDeprecations(nil, false)
	if quiet.Warn(ctx, "x", "y") {
		t.Error("Warn() outside development mode = true")
	}
}
