// Package shell turns a prerender classification into a static document
// with holes, and fills the holes at request time.
//
// Each hole stands for one maximal dynamic region, anchored at its async
// boundary (or at the root when no boundary stops it). Hole IDs are derived
// from the route and the boundary's path, so a prerender pass and a later
// runtime pass agree on them.
package shell
