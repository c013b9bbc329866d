package engine

import (
	"sync"

	"blainsmith.com/go/seahash"
	gunsafe "github.com/grailbio/base/unsafe"

	"github.com/grailbio/kmersearch/highfreqcache"
	"github.com/grailbio/kmersearch/metastore"
)

// numHFShards is the shard count for hfRegistry. A real host may attach
// high-frequency caches for many (table,column) pairs from concurrent
// query goroutines; one mutex per registry would serialize every attach
// behind whichever column is slowest to load, the shape the teacher's
// sharded mate-map in bamprovider/concurrentmap.go exists to avoid.
const numHFShards = 16

type hfShard struct {
	mu     sync.Mutex
	caches map[metastore.TableColumn]highfreqcache.Cache
}

// hfRegistry is a sharded, thread-safe map from (table,column) to its
// attached high-frequency cache, the same sharded-mutex shape as
// bamprovider.concurrentMap, generalized from a fixed key type (read
// name) to metastore.TableColumn.
type hfRegistry struct {
	shards [numHFShards]hfShard
}

func newHFRegistry() *hfRegistry {
	r := &hfRegistry{}
	for i := range r.shards {
		r.shards[i].caches = make(map[metastore.TableColumn]highfreqcache.Cache)
	}
	return r
}

func (r *hfRegistry) shardFor(tc metastore.TableColumn) *hfShard {
	key := tc.Table + "\x00" + tc.Column
	h := seahash.Sum64(gunsafe.StringToBytes(key))
	return &r.shards[h%uint64(len(r.shards))]
}

// get returns the cache attached for tc, if any.
func (r *hfRegistry) get(tc metastore.TableColumn) (highfreqcache.Cache, bool) {
	s := r.shardFor(tc)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[tc]
	return c, ok
}

// getOrLoad returns the cache attached for tc, loading and memoizing one
// via load if none is attached yet. load runs with tc's shard locked, so
// two concurrent loads for the same column never race; loads for
// different columns in different shards proceed in parallel.
func (r *hfRegistry) getOrLoad(tc metastore.TableColumn, load func() (highfreqcache.Cache, error)) (highfreqcache.Cache, error) {
	s := r.shardFor(tc)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[tc]; ok {
		return c, nil
	}
	c, err := load()
	if err != nil {
		return nil, err
	}
	s.caches[tc] = c
	return c, nil
}

// drop closes and removes the cache attached for tc, if any.
func (r *hfRegistry) drop(tc metastore.TableColumn) {
	s := r.shardFor(tc)
	s.mu.Lock()
	c, ok := s.caches[tc]
	if ok {
		delete(s.caches, tc)
	}
	s.mu.Unlock()
	if ok {
		c.Close()
	}
}

// closeAll closes and removes every attached cache, returning the first
// error encountered.
func (r *hfRegistry) closeAll() error {
	var firstErr error
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		caches := s.caches
		s.caches = make(map[metastore.TableColumn]highfreqcache.Cache)
		s.mu.Unlock()
		for _, c := range caches {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
