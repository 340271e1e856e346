package cache

import (
	"hash/fnv"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

const defaultStripes = 16

// tagIndex maps tags to the ordinals of the keys carrying them. Buckets are
// spread over stripes so writers on unrelated tags do not contend.
type tagIndex struct {
	stripes []tagStripe
}

type tagStripe struct {
	mu      sync.RWMutex
	buckets map[Tag]*roaring.Bitmap
}

func newTagIndex(stripes int) *tagIndex {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	ix := &tagIndex{stripes: make([]tagStripe, stripes)}
	for i := range ix.stripes {
		ix.stripes[i].buckets = make(map[Tag]*roaring.Bitmap)
	}
	return ix
}

func (ix *tagIndex) stripe(tag Tag) *tagStripe {
	h := fnv.New32a()
	h.Write([]byte(tag))
	return &ix.stripes[h.Sum32()%uint32(len(ix.stripes))]
}

func (ix *tagIndex) add(tag Tag, ord uint32) {
	s := ix.stripe(tag)
	s.mu.Lock()
	defer s.mu.Unlock()

	bm, ok := s.buckets[tag]
	if !ok {
		bm = roaring.New()
		s.buckets[tag] = bm
	}
	bm.Add(ord)
}

func (ix *tagIndex) remove(tag Tag, ord uint32) {
	s := ix.stripe(tag)
	s.mu.Lock()
	defer s.mu.Unlock()

	bm, ok := s.buckets[tag]
	if !ok {
		return
	}
	bm.Remove(ord)
	if bm.IsEmpty() {
		delete(s.buckets, tag)
	}
}

// members returns a snapshot of the ordinals carrying tag.
func (ix *tagIndex) members(tag Tag) []uint32 {
	s := ix.stripe(tag)
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.buckets[tag]
	if !ok {
		return nil
	}
	return bm.ToArray()
}

func (ix *tagIndex) contains(tag Tag, ord uint32) bool {
	s := ix.stripe(tag)
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.buckets[tag]
	return ok && bm.Contains(ord)
}

// each calls fn for every tag with a snapshot of its ordinals.
func (ix *tagIndex) each(fn func(tag Tag, ords []uint32)) {
	for i := range ix.stripes {
		s := &ix.stripes[i]
		s.mu.RLock()
		snapshot := make(map[Tag][]uint32, len(s.buckets))
		for tag, bm := range s.buckets {
			snapshot[tag] = bm.ToArray()
		}
		s.mu.RUnlock()

		for tag, ords := range snapshot {
			fn(tag, ords)
		}
	}
}

func (ix *tagIndex) reset() {
	for i := range ix.stripes {
		s := &ix.stripes[i]
		s.mu.Lock()
		s.buckets = make(map[Tag]*roaring.Bitmap)
		s.mu.Unlock()
	}
}

// size returns the number of distinct tags.
func (ix *tagIndex) size() int {
	n := 0
	for i := range ix.stripes {
		s := &ix.stripes[i]
		s.mu.RLock()
		n += len(s.buckets)
		s.mu.RUnlock()
	}
	return n
}
