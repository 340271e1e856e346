// Package cache holds the entry lifecycle of the render cache: deterministic
// key derivation, the handler storage contract, the tag and path reverse
// indexes, and the stale/revalidate/expire freshness arithmetic.
//
// Store is the only type callers normally hold. It fronts one Handler per
// Kind, keeps its own index of tags and paths for every key it has written,
// and serves GetOrCompute with single-flight and stale-while-revalidate.
package cache
