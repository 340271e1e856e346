package boundary

import (
	"context"
	"fmt"

	"github.com/jonwraymond/rendercache/cache"
)

// RenderFunc renders one node's own output. It reads request-time data only
// through a.
type RenderFunc func(ctx context.Context, a *Access) ([]byte, error)

// CacheSpec wraps a node's render in a cache scope.
type CacheSpec struct {
	// Function identifies the cached render. Default: "node:" plus the node path.
	Function string
	Kind     cache.Kind
	Profile  string
	Tags     []cache.Tag
	Paths    []string
}

// Node is one subtree of a render tree. The rendered document is each node's
// own output followed by its children's, in order.
type Node struct {
	// ID must be unique within the tree.
	ID string
	// Async marks an asynchronous boundary: a dynamic region below it stops
	// here and becomes a hole instead of making the ancestors dynamic.
	Async bool
	// Fallback is served in place of an async node's hole until it is filled.
	Fallback []byte
	Cache    *CacheSpec
	// RuntimePrefetch allows the subtree to be pre-rendered against sample
	// inputs, see package prefetch.
	RuntimePrefetch bool
	// Params are the node's bindings. They key the node's cache scope and
	// travel with its hole.
	Params   map[string]string
	Render   RenderFunc
	Children []*Node
}

// Validate checks that the tree is non-nil and its IDs are unique.
func Validate(root *Node) error {
	if root == nil {
		return ErrNilNode
	}
	seen := make(map[string]bool)
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n == nil {
			return ErrNilNode
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, n.ID)
		}
		seen[n.ID] = true
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// Find returns the node with the given id, its slash-separated path from the
// root and its depth. The root has depth 0.
func Find(root *Node, id string) (*Node, string, int, error) {
	var (
		found *Node
		path  string
		depth int
	)
	var walk func(n *Node, p string, d int) bool
	walk = func(n *Node, p string, d int) bool {
		if n == nil {
			return false
		}
		if n.ID == id {
			found, path, depth = n, p, d
			return true
		}
		for _, c := range n.Children {
			if c != nil && walk(c, p+"/"+c.ID, d+1) {
				return true
			}
		}
		return false
	}
	if root == nil || !walk(root, root.ID, 0) {
		return nil, "", 0, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return found, path, depth, nil
}
