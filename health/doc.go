// Package health reports whether the cache can serve traffic.
//
// A Checker reports one component. Aggregator runs a set of checkers
// concurrently under a deadline and folds their results into one Status.
// StoreChecker covers a cache.Store: its handlers, its circuit breaker and the
// consistency of its tag index. The gin handlers expose liveness, readiness
// and a detailed JSON report.
package health
