// Package querycache implements the three layered query caches of
// spec.md section 4.6 (component C6): the pattern cache, the
// adjusted-min-score cache, and the rawscore cache. Each is
// capacity-bounded with its own spec-mandated eviction policy and keyed
// by a farm hash, the same hashing choice the teacher's sharded k-mer
// index uses for its own lookup keys (fusion/kmer_index.go's
// farm.Hash64WithSeed).
package querycache

import (
	"container/list"
	"sync"

	farm "github.com/dgryski/go-farm"
	gunsafe "github.com/grailbio/base/unsafe"

	"github.com/grailbio/kmersearch/kmer"
)

// PatternCache maps (query_string, k) to its extracted k-mer array,
// evicting least-recently-used entries once Capacity is reached.
type PatternCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[uint64]*list.Element
}

type patternElem struct {
	hash uint64
	keys []kmer.PackedKey
}

// NewPatternCache returns an empty pattern cache bounded at capacity
// entries (query_pattern_cache_max_entries, spec.md section 6.2).
func NewPatternCache(capacity int) *PatternCache {
	return &PatternCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uint64]*list.Element),
	}
}

// patternHash derives the cache key from the query string and k the same
// way fusion/kmer_index.go derives kmer lookup keys: a seeded farmhash
// over the byte content.
func patternHash(query string, k int) uint64 {
	return farm.Hash64WithSeed(gunsafe.StringToBytes(query), uint64(k))
}

// Get returns the cached extracted key array for (query, k), promoting it
// to most-recently-used on hit.
func (c *PatternCache) Get(query string, k int) ([]kmer.PackedKey, bool) {
	if c.capacity <= 0 {
		return nil, false
	}
	h := patternHash(query, k)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[h]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*patternElem).keys, true
}

// Put inserts or refreshes the cached extraction for (query, k), evicting
// the least-recently-used entry if the cache is at capacity.
func (c *PatternCache) Put(query string, k int, keys []kmer.PackedKey) {
	if c.capacity <= 0 {
		return
	}
	h := patternHash(query, k)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[h]; ok {
		el.Value.(*patternElem).keys = keys
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&patternElem{hash: h, keys: keys})
	c.items[h] = el
	if c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *PatternCache) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	c.ll.Remove(oldest)
	delete(c.items, oldest.Value.(*patternElem).hash)
}

// Len reports the current number of cached entries.
func (c *PatternCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear empties the cache; called when query_pattern_cache_max_entries is
// reconfigured (spec.md section 4.6: "capacity ... is re-read when the
// cache is cleared and rebuilt").
func (c *PatternCache) Clear(newCapacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = newCapacity
	c.ll = list.New()
	c.items = make(map[uint64]*list.Element)
}
