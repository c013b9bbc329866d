package highfreqcache

import (
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/metastore"
)

// LocalCache is the process-local implementation of spec.md section 4.7's
// local cache: a plain in-process set, loaded once per process from the
// persisted high-frequency collection.
type LocalCache struct {
	fingerprint kmerconfig.Fingerprint
	set         map[uint64]struct{}
}

// loadLocal implements the local-cache load path: stream the persisted
// high-frequency records in batches of DefaultStreamBatch and insert each into the
// set, then record the fingerprint. The fingerprint check against the
// engine's current configuration already happened in Load.
func loadLocal(tc metastore.TableColumn, fp kmerconfig.Fingerprint, store metastore.Store) (*LocalCache, error) {
	c := &LocalCache{
		fingerprint: fp,
		set:         make(map[uint64]struct{}),
	}
	err := store.StreamHighFreq(tc, DefaultStreamBatch, func(batch []uint64) error {
		for _, k := range batch {
			c.set[k] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Contains reports set membership.
func (c *LocalCache) Contains(kmerInt uint64) bool {
	_, ok := c.set[kmerInt]
	return ok
}

// Fingerprint returns the configuration this cache was built under.
func (c *LocalCache) Fingerprint() kmerconfig.Fingerprint {
	return c.fingerprint
}

// Close releases the set. A LocalCache holds no OS resources, so this
// only drops the reference, letting the garbage collector reclaim it.
func (c *LocalCache) Close() error {
	c.set = nil
	return nil
}
