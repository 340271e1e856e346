package prefetch

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/jonwraymond/rendercache/boundary"
	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/shell"
)

// SampleTag is carried by every sample-derived entry.
const SampleTag cache.Tag = "_sample"

// SubtreeTag is carried by the sample entries of one subtree.
func SubtreeTag(subtreeID string) cache.Tag {
	return SampleTag + ":" + cache.Tag(subtreeID)
}

// Config configures a Sampler.
type Config struct {
	Store *cache.Store
	// Classifier renders samples. It must be in runtime mode. Default: a
	// runtime classifier without a runner.
	Classifier *boundary.Classifier
	// Deriver defaults to NewDeriver("").
	Deriver *cache.Deriver
	// Profile is the cache life of sample entries. Default: the "default" profile.
	Profile *cache.Profile
	// Concurrency bounds concurrent sample renders. Default: 4.
	Concurrency int
	Middleware  *observe.Middleware
	Logger      observe.Logger
}

// Sampler renders prefetchable subtrees against sample inputs.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Sample entries are keyed by subtree path and sample inputs only, so the
//     same sample always lands on the same entry.
type Sampler struct {
	store       *cache.Store
	classifier  *boundary.Classifier
	deriver     *cache.Deriver
	profile     cache.Profile
	concurrency int
	mw          *observe.Middleware
	logger      observe.Logger
}

// NewSampler creates a Sampler.
func NewSampler(cfg Config) (*Sampler, error) {
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	if cfg.Classifier == nil {
		cfg.Classifier = boundary.NewClassifier(boundary.Config{Mode: boundary.ModeRuntime})
	}
	if cfg.Classifier.Mode() != boundary.ModeRuntime {
		return nil, ErrPrerenderMode
	}
	if cfg.Deriver == nil {
		cfg.Deriver = cache.NewDeriver("")
	}
	profile := cache.DefaultProfiles()[cache.DefaultProfileName]
	if cfg.Profile != nil {
		if err := cfg.Profile.Validate(); err != nil {
			return nil, err
		}
		profile = *cfg.Profile
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NopMiddleware()
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Sampler{
		store:       cfg.Store,
		classifier:  cfg.Classifier,
		deriver:     cfg.Deriver,
		profile:     profile,
		concurrency: cfg.Concurrency,
		mw:          cfg.Middleware,
		logger:      cfg.Logger.With(observe.F("component", "prefetch")),
	}, nil
}

type sampled struct {
	index int
	entry *cache.Entry
}

// Sample renders the subtree subtreeID of tree once per sample and stores
// each output. Entries are returned in sample order. If any sample fails the
// error reports every failure and the successful samples stay stored.
func (s *Sampler) Sample(ctx context.Context, tree *boundary.Node, subtreeID string, samples []boundary.Inputs) ([]*cache.Entry, error) {
	node, path, _, err := boundary.Find(tree, subtreeID)
	if err != nil {
		return nil, err
	}
	if !node.RuntimePrefetch {
		return nil, fmt.Errorf("%w: %s", ErrNotPrefetchable, subtreeID)
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	var out []*cache.Entry
	meta := observe.OpMeta{Op: "sample", Target: path}
	err = s.mw.Run(ctx, meta, func(ctx context.Context) error {
		p := pool.NewWithResults[sampled]().WithContext(ctx).WithMaxGoroutines(s.concurrency)
		for i, in := range samples {
			p.Go(func(ctx context.Context) (sampled, error) {
				e, err := s.sampleOne(ctx, tree, subtreeID, path, in)
				if err != nil {
					return sampled{}, fmt.Errorf("sample %d: %w", i, err)
				}
				return sampled{index: i, entry: e}, nil
			})
		}
		results, err := p.Wait()
		sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
		for _, r := range results {
			out = append(out, r.entry)
		}
		return err
	})
	return out, err
}

func (s *Sampler) sampleOne(ctx context.Context, tree *boundary.Node, subtreeID, path string, in boundary.Inputs) (*cache.Entry, error) {
	res, err := s.classifier.RenderAt(ctx, tree, subtreeID, in)
	if err != nil {
		return nil, err
	}
	if err := res.Errs(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSampleRender, err)
	}

	key, err := s.key(path, in)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.Set(ctx, key, shell.Document(res), cache.Meta{
		Tags:    []cache.Tag{SampleTag, SubtreeTag(subtreeID)},
		Profile: s.profile,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "sample stored", observe.F("path", path), observe.F("key", key.String()))
	return entry, nil
}

// key derives the entry key of one sample from the subtree path and the
// request data the sample carries.
func (s *Sampler) key(path string, in boundary.Inputs) (cache.Key, error) {
	return s.deriver.Derive(cache.Call{
		Function: "prefetch:" + path,
		Kind:     cache.KindPublic,
		Args: []any{
			maps.Clone(in.Cookies),
			map[string][]string(in.Headers),
			map[string][]string(in.SearchParams),
			in.Seed,
		},
	})
}

// Lookup returns the stored sample of subtreeID for in, if one is present
// and not expired.
func (s *Sampler) Lookup(ctx context.Context, tree *boundary.Node, subtreeID string, in boundary.Inputs) ([]byte, bool, error) {
	_, path, _, err := boundary.Find(tree, subtreeID)
	if err != nil {
		return nil, false, err
	}
	key, err := s.key(path, in)
	if err != nil {
		return nil, false, err
	}
	res, err := s.store.Lookup(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !res.Hit || res.Freshness == cache.ExpiredMustRecompute {
		return nil, false, nil
	}
	return res.Entry.Value, true, nil
}

// InvalidateSamples invalidates the sample entries of subtreeID, or of every
// subtree when subtreeID is empty.
func (s *Sampler) InvalidateSamples(ctx context.Context, subtreeID string, mode cache.Mode) (int, error) {
	tag := SampleTag
	if subtreeID != "" {
		tag = SubtreeTag(subtreeID)
	}
	return s.store.InvalidateByTag(ctx, tag, mode)
}
