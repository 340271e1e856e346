// Package boundary classifies a render tree into static and dynamic regions.
//
// Render functions receive an *Access, the only way to read request-time
// data (cookies, headers, search params, the clock, randomness, the
// connection). Every read is recorded. A read outside a cache scope makes the
// node Dynamic; inside a scope it is absorbed when the scope kind permits it
// and fails the subtree with ErrForbiddenDynamicAccess otherwise.
//
// Dynamic bubbles from a node to its parent until it reaches the nearest
// Async node, which keeps the classification and stops the bubble. The shell
// package turns each dynamic Async node into a hole.
package boundary
