// Package highfreqcache implements the two coexisting high-frequency
// k-mer cache strategies of spec.md section 4.7 (component C7): a
// per-process local set and an inter-process shared hash table. Which
// one a given engine uses is selected by
// kmerconfig.Config.ForceUseParallelHighfreqKmerCache.
package highfreqcache

import (
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/kmerr"
	"github.com/grailbio/kmersearch/metastore"
)

// DefaultStreamBatch is the batch size both loaders pass to StreamHighFreq;
// it is not configurable.
const DefaultStreamBatch = 1 << 14

// Cache is the membership-test contract both C7 implementations satisfy.
// ginindex and score consult it only through this interface, so the
// local/shared choice is invisible above this package.
type Cache interface {
	// Contains reports whether kmerInt is in the high-frequency set this
	// cache was loaded for.
	Contains(kmerInt uint64) bool

	// Fingerprint returns the configuration fingerprint this cache was
	// loaded under.
	Fingerprint() kmerconfig.Fingerprint

	// Close releases whatever resources the cache holds (a plain map for
	// LocalCache, a shared-memory attachment for SharedCache).
	Close() error
}

// Load builds the right Cache implementation for cfg and loads it for
// (table,column) from store, verifying the stored fingerprint against
// cfg's current fingerprint first (spec.md section 4.7 local-cache load
// path step (a), reused by the shared path too).
func Load(tc metastore.TableColumn, cfg kmerconfig.Config, store metastore.Store) (Cache, error) {
	fp, ok, err := store.GetFingerprint(tc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kmerr.E(kmerr.MissingMetadata, "no high-frequency analysis committed for", tc.Table, tc.Column)
	}
	current := cfg.Fingerprint()
	if !current.Matches(fp.Fingerprint) {
		return nil, kmerr.E(kmerr.ConfigMismatch, "configuration fingerprint diverges from committed analysis for", tc.Table, tc.Column)
	}
	if cfg.ForceUseParallelHighfreqKmerCache {
		return loadShared(tc, fp.Fingerprint, store)
	}
	return loadLocal(tc, fp.Fingerprint, store)
}

// Invalidate drops this process's shared-segment attachments for
// (table,column), used by analysis.Undo (spec.md section 4.7
// "Invalidation"). LocalCache values are not tracked here and are left
// untouched; whoever holds one drops it.
func Invalidate(tc metastore.TableColumn) {
	invalidateShared(tc)
}
