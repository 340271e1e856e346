package prefetch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jonwraymond/rendercache/boundary"
	"github.com/jonwraymond/rendercache/cache"
)

var errBadLocale = errors.New("bad locale")

// tree is page > banner (prefetchable, reads the locale cookie) and footer.
func tree() *boundary.Node {
	banner := &boundary.Node{
		ID:              "banner",
		Async:           true,
		RuntimePrefetch: true,
		Render: func(ctx context.Context, a *boundary.Access) ([]byte, error) {
			locale, err := a.Cookie(ctx, "locale")
			if err != nil {
				return nil, err
			}
			if locale == "xx" {
				return nil, errBadLocale
			}
			return []byte("banner:" + locale), nil
		},
	}
	footer := &boundary.Node{
		ID:     "footer",
		Render: func(context.Context, *boundary.Access) ([]byte, error) { return []byte("footer"), nil },
	}
	return &boundary.Node{ID: "page", Children: []*boundary.Node{banner, footer}}
}

func locale(l string) boundary.Inputs {
	return boundary.Inputs{Cookies: map[string]string{"locale": l}}
}

func newTestSampler(t *testing.T, concurrency int) (*Sampler, *cache.Store) {
	t.Helper()
	store := cache.NewStore(cache.StoreConfig{})
	s, err := NewSampler(Config{Store: store, Concurrency: concurrency})
	if err != nil {
		t.Fatalf("NewSampler() error = %v", err)
	}
	return s, store
}

func TestNewSampler_Validation(t *testing.T) {
	store := cache.NewStore(cache.StoreConfig{})
	bad := cache.Profile{Stale: 2, Revalidate: 1, Expire: 3}

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"no store", Config{}, ErrMissingStore},
		{"prerender classifier", Config{Store: store, Classifier: boundary.NewClassifier(boundary.Config{Mode: boundary.ModePrerender})}, ErrPrerenderMode},
		{"invalid profile", Config{Store: store, Profile: &bad}, cache.ErrInvalidProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSampler(tt.cfg); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSampler() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSampler_Sample(t *testing.T) {
	s, _ := newTestSampler(t, 3)
	ctx := context.Background()

	locales := []string{"en", "fr", "de", "es", "it", "pt", "nl", "sv"}
	samples := make([]boundary.Inputs, len(locales))
	for i, l := range locales {
		samples[i] = locale(l)
	}

	entries, err := s.Sample(ctx, tree(), "banner", samples)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(entries) != len(locales) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(locales))
	}
	for i, e := range entries {
		if want := "banner:" + locales[i]; string(e.Value) != want {
			t.Errorf("entries[%d] = %q, want %q", i, e.Value, want)
		}
		if !e.HasTag(SampleTag) || !e.HasTag(SubtreeTag("banner")) {
			t.Errorf("entries[%d].Tags = %v, want sample tags", i, e.Tags)
		}
	}

	got, ok, err := s.Lookup(ctx, tree(), "banner", locale("fr"))
	if err != nil || !ok || string(got) != "banner:fr" {
		t.Errorf("Lookup(fr) = (%q, %v, %v), want (banner:fr, true, nil)", got, ok, err)
	}
	if _, ok, _ := s.Lookup(ctx, tree(), "banner", locale("ja")); ok {
		t.Error("Lookup(ja) hit without a sample")
	}
}

func TestSampler_Errors(t *testing.T) {
	s, _ := newTestSampler(t, 0)
	ctx := context.Background()

	root := tree()
	tests := []struct {
		name    string
		id      string
		samples []boundary.Inputs
		wantErr error
	}{
		{"not prefetchable", "footer", []boundary.Inputs{locale("en")}, ErrNotPrefetchable},
		{"unknown subtree", "sidebar", []boundary.Inputs{locale("en")}, boundary.ErrNodeNotFound},
		{"no samples", "banner", nil, ErrNoSamples},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Sample(ctx, root, tt.id, tt.samples); !errors.Is(err, tt.wantErr) {
				t.Errorf("Sample() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSampler_FailedSampleKeepsOthers(t *testing.T) {
	s, _ := newTestSampler(t, 2)
	ctx := context.Background()

	entries, err := s.Sample(ctx, tree(), "banner", []boundary.Inputs{locale("en"), locale("xx"), locale("fr")})
	if !errors.Is(err, ErrSampleRender) || !errors.Is(err, errBadLocale) {
		t.Fatalf("Sample() error = %v, want %v wrapping %v", err, ErrSampleRender, errBadLocale)
	}
	if len(entries) != 2 || string(entries[0].Value) != "banner:en" || string(entries[1].Value) != "banner:fr" {
		t.Errorf("entries = %v, want en and fr in order", entries)
	}
	for _, l := range []string{"en", "fr"} {
		if _, ok, _ := s.Lookup(ctx, tree(), "banner", locale(l)); !ok {
			t.Errorf("Lookup(%s) missed after a sibling sample failed", l)
		}
	}
}

func TestSampler_InvalidateSamples(t *testing.T) {
	s, store := newTestSampler(t, 0)
	ctx := context.Background()

	if _, err := s.Sample(ctx, tree(), "banner", []boundary.Inputs{locale("en"), locale("fr")}); err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	// A request-driven entry for the same subtree must survive.
	live, _ := cache.NewDeriver("").Derive(cache.Call{Function: "banner-live"})
	if _, err := store.Set(ctx, live, []byte("live"), cache.Meta{
		Tags:    []cache.Tag{"banner"},
		Profile: cache.DefaultProfiles()[cache.DefaultProfileName],
	}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	tests := []struct {
		subtree string
		want    int
	}{
		{"banner", 2},
		{"", 2},
		{"footer", 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("subtree=%q", tt.subtree), func(t *testing.T) {
			n, err := s.InvalidateSamples(ctx, tt.subtree, cache.ModeImmediate)
			if err != nil || n != tt.want {
				t.Errorf("InvalidateSamples(%q) = (%d, %v), want (%d, nil)", tt.subtree, n, err, tt.want)
			}
		})
	}

	if _, ok, _ := s.Lookup(ctx, tree(), "banner", locale("en")); ok {
		t.Error("Lookup(en) hit after InvalidateSamples")
	}
	res, err := store.Lookup(ctx, live)
	if err != nil || !res.Hit || res.Freshness != cache.Fresh {
		t.Errorf("live entry = (%+v, %v), want a fresh hit", res, err)
	}
}

func TestSubtreeTag(t *testing.T) {
	if got := SubtreeTag("banner"); got != "_sample:banner" {
		t.Errorf("SubtreeTag() = %q, want %q", got, "_sample:banner")
	}
}
