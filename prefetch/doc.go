// Package prefetch pre-renders runtime-prefetchable subtrees against
// representative inputs.
//
// A subtree that reads request data is dynamic under real traffic, but its
// output for a typical request (an anonymous visitor, a default locale) is
// still worth caching. Sampler renders such a subtree once per sample and
// stores each result as a normal entry, tagged so that sample-derived entries
// can be invalidated without touching request-driven ones.
package prefetch
