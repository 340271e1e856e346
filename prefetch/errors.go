package prefetch

import "errors"

var (
	// ErrNotPrefetchable means the subtree is not marked RuntimePrefetch.
	ErrNotPrefetchable = errors.New("prefetch: subtree is not runtime-prefetchable")

	ErrNoSamples     = errors.New("prefetch: no sample inputs")
	ErrMissingStore  = errors.New("prefetch: store is required")
	ErrPrerenderMode = errors.New("prefetch: samples must render in runtime mode")
	ErrSampleRender  = errors.New("prefetch: sample render failed")
)
