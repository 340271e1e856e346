// Package revalidate routes invalidation requests to the cache store.
//
// A Request names a tag or a path and whether it expires now or lazily.
// Router.Submit validates a batch, coalesces duplicate targets, applies the
// survivors to the store (which forwards them to every handler) and notifies
// subscribed listeners. The Router methods InvalidateTag, InvalidatePath,
// ExpireTag and ExpirePath are the request-handling entry points; they refuse
// to run inside a cacheable body.
package revalidate
