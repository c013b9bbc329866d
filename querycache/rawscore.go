package querycache

import (
	"sync"

	farm "github.com/dgryski/go-farm"
	"github.com/biogo/store/llrb"
	gunsafe "github.com/grailbio/base/unsafe"
)

// RawscoreResult is the value side of the rawscore cache: the shared-count
// and the derived fields spec.md section 4.6 lists alongside it. Score and
// CorrectedScore are computed independently and may be cached one at a
// time; -1 in either field means "not yet computed" (both real scores are
// always >= 0, so -1 is unambiguous).
type RawscoreResult struct {
	Score          int
	CorrectedScore int
}

// rawscoreKey is the (stored sequence, query string) pair a rawscore
// lookup is made for (spec.md section 4.6). The cache does not retain the
// pair: Get and Put key c.entries on the pair's 64-bit hash only, so two
// different pairs with the same hash share one entry.
type rawscoreKey struct {
	stored string
	query  string
}

func (k rawscoreKey) hash() uint64 {
	return farm.Hash64WithSeed(gunsafe.StringToBytes(k.stored+"\x00"+k.query), 0)
}

// scoreRank orders rawscoreEntry nodes for llrb.Tree: by score ascending,
// breaking ties by a monotonic sequence number so no two entries ever
// compare equal (required for a tree keyed purely by score, where
// duplicate scores are the common case).
type scoreRank struct {
	score int
	seq   uint64
	key   uint64 // the rawscoreKey hash this rank belongs to, for lazy-deletion checks
}

func (r scoreRank) Compare(other llrb.Comparable) int {
	o := other.(scoreRank)
	switch {
	case r.score < o.score:
		return -1
	case r.score > o.score:
		return 1
	case r.seq < o.seq:
		return -1
	case r.seq > o.seq:
		return 1
	default:
		return 0
	}
}

type rawscoreNode struct {
	result RawscoreResult
	rank   scoreRank
}

// RawscoreCache maps (stored sequence, query string) to a match count and
// its derived fields, evicting by min-heap-on-score: the lowest-scored
// entry evicts first (spec.md section 4.6). A biogo/store/llrb tree
// ordered by score stands in for the spec's min-heap — both give O(log n)
// insert and O(log n) find-and-remove-minimum, and an ordered tree is the
// structure the teacher's dependency set already carries for this shape
// of problem.
type RawscoreCache struct {
	mu       sync.Mutex
	capacity int
	nextSeq  uint64
	entries  map[uint64]*rawscoreNode
	ranks    *llrb.Tree
}

// NewRawscoreCache returns an empty rawscore cache bounded at capacity
// entries (rawscore_cache_max_entries, spec.md section 6.2).
func NewRawscoreCache(capacity int) *RawscoreCache {
	return &RawscoreCache{
		capacity: capacity,
		entries:  make(map[uint64]*rawscoreNode),
		ranks:    &llrb.Tree{},
	}
}

// Get returns the cached result for (stored, query).
func (c *RawscoreCache) Get(stored, query string) (RawscoreResult, bool) {
	if c.capacity <= 0 {
		return RawscoreResult{}, false
	}
	h := rawscoreKey{stored: stored, query: query}.hash()
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[h]
	if !ok {
		return RawscoreResult{}, false
	}
	return n.result, true
}

// Put inserts or replaces the cached result for (stored, query), evicting
// the lowest-scored entry if the cache is at capacity.
func (c *RawscoreCache) Put(stored, query string, result RawscoreResult) {
	if c.capacity <= 0 {
		return
	}
	h := rawscoreKey{stored: stored, query: query}.hash()
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, exists := c.entries[h]; exists {
		delete(c.entries, h)
		_ = old // the stale rank entry in c.ranks is lazily dropped on eviction
	} else if len(c.entries) >= c.capacity {
		c.evictMin()
	}

	c.nextSeq++
	rank := scoreRank{score: result.Score, seq: c.nextSeq, key: h}
	c.ranks.Insert(rank)
	c.entries[h] = &rawscoreNode{result: result, rank: rank}
}

// evictMin pops the lowest-scored live entry, skipping ranks left behind
// by Put's overwrite path (lazy deletion: a rank whose key no longer maps
// to it in c.entries is stale and is simply discarded).
func (c *RawscoreCache) evictMin() {
	for c.ranks.Len() > 0 {
		min := c.ranks.Min()
		if min == nil {
			return
		}
		rank := min.(scoreRank)
		c.ranks.DeleteMin()
		if n, ok := c.entries[rank.key]; ok && n.rank.seq == rank.seq {
			delete(c.entries, rank.key)
			return
		}
		// Stale rank from an overwritten entry; keep popping.
	}
}

// Len reports the current number of live cached entries.
func (c *RawscoreCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the cache and applies a newly configured capacity.
func (c *RawscoreCache) Clear(newCapacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = newCapacity
	c.entries = make(map[uint64]*rawscoreNode)
	c.ranks = &llrb.Tree{}
}
