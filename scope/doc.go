// Package scope identifies the caller a private cache entry belongs to.
//
// A Caller carries a stable ID and a secret derived from the caller's session.
// Private cache keys are folded with that secret so entries produced for one
// caller are unreachable for every other caller. SessionResolver turns a
// signed session token into a Caller and issues such tokens.
package scope
