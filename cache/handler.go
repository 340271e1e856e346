package cache

import "context"

// Handler is the storage contract the Store delegates to, one per Kind.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: methods must honor cancellation and deadlines.
//   - Get returns (nil, nil) on a miss; an error means the backend failed.
//   - Set is an idempotent upsert that replaces tags, paths and any
//     invalidation mark of the previous entry.
//   - ExpireTags and ExpirePaths mark matching entries; they never delete.
//   - Entries returned by Get are owned by the caller.
type Handler interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Set(ctx context.Context, key Key, entry *Entry) error
	ExpireTags(ctx context.Context, tags []Tag, mode Mode) error
	ExpirePaths(ctx context.Context, paths []string, g Granularity) error
}

// Deleter is implemented by handlers that support hard removal. Handlers
// serving KindPrivate must implement it so ended caller scopes are purged.
type Deleter interface {
	Delete(ctx context.Context, key Key) error
}

// Pinger is implemented by handlers with a reachable backend.
type Pinger interface {
	Ping(ctx context.Context) error
}
