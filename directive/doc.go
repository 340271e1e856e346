// Package directive is the user-facing surface of the cache.
//
// A CacheableCall marks a function body as cacheable with a sharing kind.
// Runner derives its key, consults the per-request cache and the Store, and
// runs the body on a miss with a cache scope attached to the context. Inside
// that scope the body may call AddTag, SetProfile and UseProfile; the tags
// and the tightest profile of nested scopes flow to the enclosing one, on
// hits as well as misses.
//
// Legacy names (UnstableCacheTag, UnstableCacheLife) forward to their modern
// counterparts and warn once per process in development mode, see
// InitDeprecations.
package directive
