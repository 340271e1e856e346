package cache

import (
	"path"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// NormalizePath cleans a route path: leading slash, no trailing slash, no
// duplicate separators. The root is "/".
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// PathMatches reports whether an entry stored at entryPath is matched by an
// invalidation of target with granularity g. Layout matching is segment
// aware: "/blog" matches "/blog/post" but not "/blogroll".
func PathMatches(entryPath, target string, g Granularity) bool {
	entryPath, target = NormalizePath(entryPath), NormalizePath(target)
	if entryPath == target {
		return true
	}
	if g != GranularityLayout {
		return false
	}
	if target == "/" {
		return true
	}
	return strings.HasPrefix(entryPath, target+"/")
}

// pathIndex maps normalized paths to the keys rendered at them.
type pathIndex struct {
	mu   sync.RWMutex
	tree *radix.Tree
}

func newPathIndex() *pathIndex {
	return &pathIndex{tree: radix.New()}
}

func (ix *pathIndex) add(p string, key Key) {
	p = NormalizePath(p)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	var set map[Key]struct{}
	if v, ok := ix.tree.Get(p); ok {
		set = v.(map[Key]struct{})
	} else {
		set = make(map[Key]struct{})
		ix.tree.Insert(p, set)
	}
	set[key] = struct{}{}
}

func (ix *pathIndex) remove(p string, key Key) {
	p = NormalizePath(p)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	v, ok := ix.tree.Get(p)
	if !ok {
		return
	}
	set := v.(map[Key]struct{})
	delete(set, key)
	if len(set) == 0 {
		ix.tree.Delete(p)
	}
}

// match returns the keys stored at target, and for layout granularity at
// every path below it.
func (ix *pathIndex) match(target string, g Granularity) []Key {
	target = NormalizePath(target)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var keys []Key
	collect := func(v any) {
		for k := range v.(map[Key]struct{}) {
			keys = append(keys, k)
		}
	}

	if g != GranularityLayout {
		if v, ok := ix.tree.Get(target); ok {
			collect(v)
		}
		return keys
	}

	ix.tree.WalkPrefix(target, func(p string, v interface{}) bool {
		if PathMatches(p, target, GranularityLayout) {
			collect(v)
		}
		return false
	})
	return keys
}

func (ix *pathIndex) reset() {
	ix.mu.Lock()
	ix.tree = radix.New()
	ix.mu.Unlock()
}

// contains reports whether key is indexed under p.
func (ix *pathIndex) contains(p string, key Key) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	v, ok := ix.tree.Get(NormalizePath(p))
	if !ok {
		return false
	}
	_, ok = v.(map[Key]struct{})[key]
	return ok
}
