// Package observe provides the logging, tracing and metrics primitives shared
// by the cache store, the render classifier and the revalidation router.
//
// Libraries accept the Logger, Tracer and Metrics interfaces and default to the
// no-op implementations; only cmd/rendercache builds a real Observer.
package observe
