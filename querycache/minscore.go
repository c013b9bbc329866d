package querycache

import (
	"sync"

	farm "github.com/dgryski/go-farm"

	"github.com/grailbio/kmersearch/kmer"
)

// MinScoreCache maps a hash of a filtered query-key array to its computed
// adjusted minimum score (spec.md section 4.5 operation 3), evicting in
// FIFO order once Capacity is reached — unlike the pattern cache, a hit
// does not refresh an entry's position.
type MinScoreCache struct {
	mu       sync.Mutex
	capacity int
	order    []uint64
	values   map[uint64]int
}

// NewMinScoreCache returns an empty adjusted-min-score cache bounded at
// capacity entries (actual_min_score_cache_max_entries, spec.md section
// 6.2).
func NewMinScoreCache(capacity int) *MinScoreCache {
	return &MinScoreCache{
		capacity: capacity,
		values:   make(map[uint64]int),
	}
}

// HashKeys derives the cache key spec.md section 4.5 op. 3 calls for: a
// hash of the filtered k-mer key set. Order-independence matters here —
// two extractions that produced the same set in a different emission
// order must hash the same — so each key's hash form is hashed with farm
// (seeded by its occurrence ordinal) and the results are XORed together,
// not concatenated by position.
func HashKeys(keys []kmer.PackedKey) uint64 {
	var acc uint64
	for _, k := range keys {
		acc ^= farm.Hash64WithSeed(uint64ToBytes(k.HashForm()), uint64(k.Occur))
	}
	return acc
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// Get returns the cached adjusted minimum score for keyHash.
func (c *MinScoreCache) Get(keyHash uint64) (int, bool) {
	if c.capacity <= 0 {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[keyHash]
	return v, ok
}

// Put inserts keyHash → score, evicting the oldest entry (in insertion
// order) if the cache is at capacity.
func (c *MinScoreCache) Put(keyHash uint64, score int) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.values[keyHash]; exists {
		c.values[keyHash] = score
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.values, oldest)
	}
	c.order = append(c.order, keyHash)
	c.values[keyHash] = score
}

// Len reports the current number of cached entries.
func (c *MinScoreCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Clear empties the cache and applies a newly configured capacity.
func (c *MinScoreCache) Clear(newCapacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = newCapacity
	c.order = nil
	c.values = make(map[uint64]int)
}
