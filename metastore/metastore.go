// Package metastore defines the three persisted collections of spec.md
// section 6.3 and the Store interface the core's analysis, cache, and
// planner components read and write through. It stands in for "the host
// database engine" external collaborator named in spec.md section 1 — a
// real host binds its own SQL-backed implementation to this interface;
// MemStore here is the in-memory reference implementation used by engine
// and by this module's own tests.
package metastore

import (
	"sync"

	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/kmerr"
)

// TableColumn identifies the (table, column) pair every persisted record
// is keyed on.
type TableColumn struct {
	Table  string
	Column string
}

// Fingerprint is the highfreq_kmer_meta row of spec.md section 6.3: the
// configuration fingerprint an analysis run was computed with, plus its
// timestamp.
type Fingerprint struct {
	kmerconfig.Fingerprint
	Timestamp int64
}

// IndexMeta is the gin_index_meta row of spec.md section 6.3, written on
// index creation and deleted on drop. Consumed by the planner gate (C8).
type IndexMeta struct {
	IndexID              string
	Table                string
	Column               string
	Fingerprint          kmerconfig.Fingerprint
	PrecludeHighfreqKmer bool
	CreatedAt            int64
}

// Store is the persistence contract spec.md section 6.3 describes. All
// methods are safe for concurrent use.
type Store interface {
	// GetFingerprint returns the analysis fingerprint for (table,column),
	// and false if no analysis has ever been committed for it.
	GetFingerprint(tc TableColumn) (Fingerprint, bool, error)

	// CommitAnalysis writes the high-frequency set and its fingerprint as
	// one logical transaction (spec.md section 4.3 step 6): either both
	// land or neither does.
	CommitAnalysis(tc TableColumn, fp Fingerprint, highFreqKmers []uint64) error

	// UndoAnalysis deletes the high-frequency records and fingerprint for
	// (table,column) (spec.md section 4.3 "Undo").
	UndoAnalysis(tc TableColumn) error

	// StreamHighFreq calls fn with successive batches (at most batchSize
	// k-mer integers each) of the persisted high-frequency set for
	// (table,column), the load path package highfreqcache's local cache
	// uses.
	StreamHighFreq(tc TableColumn, batchSize int, fn func(batch []uint64) error) error

	// PutIndexMeta records index-build metadata, populated automatically
	// when an index is created.
	PutIndexMeta(m IndexMeta) error

	// DropIndexMeta removes index-build metadata for a dropped index.
	DropIndexMeta(indexID string) error

	// ListIndexMeta returns every recorded index over (table,column), for
	// the planner gate's fingerprint comparison and sibling-index lookup.
	ListIndexMeta(tc TableColumn) ([]IndexMeta, error)
}

// MemStore is an in-memory Store, the reference implementation standing in
// for a real host database during development and in this module's tests.
type MemStore struct {
	mu          sync.Mutex
	fingerprint map[TableColumn]Fingerprint
	highFreq    map[TableColumn]map[uint64]bool
	indexMeta   map[string]IndexMeta
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		fingerprint: make(map[TableColumn]Fingerprint),
		highFreq:    make(map[TableColumn]map[uint64]bool),
		indexMeta:   make(map[string]IndexMeta),
	}
}

func (s *MemStore) GetFingerprint(tc TableColumn) (Fingerprint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.fingerprint[tc]
	return fp, ok, nil
}

func (s *MemStore) CommitAnalysis(tc TableColumn, fp Fingerprint, highFreqKmers []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[uint64]bool, len(highFreqKmers))
	for _, k := range highFreqKmers {
		set[k] = true
	}
	// Both writes land together or neither does; since this is a plain
	// in-memory map assignment there's no partial-failure window to guard.
	s.fingerprint[tc] = fp
	s.highFreq[tc] = set
	return nil
}

func (s *MemStore) UndoAnalysis(tc TableColumn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fingerprint, tc)
	delete(s.highFreq, tc)
	return nil
}

func (s *MemStore) StreamHighFreq(tc TableColumn, batchSize int, fn func([]uint64) error) error {
	if batchSize <= 0 {
		return kmerr.E(kmerr.InvalidInput, "highfreq_kmer_cache_load_batch_size must be > 0")
	}
	s.mu.Lock()
	set, ok := s.highFreq[tc]
	if !ok {
		s.mu.Unlock()
		return kmerr.E(kmerr.MissingMetadata, "no high-frequency analysis for", tc.Table, tc.Column, kmerr.Hint(tc.Table, tc.Column))
	}
	all := make([]uint64, 0, len(set))
	for k := range set {
		all = append(all, k)
	}
	s.mu.Unlock()

	for start := 0; start < len(all); start += batchSize {
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) PutIndexMeta(m IndexMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexMeta[m.IndexID] = m
	return nil
}

func (s *MemStore) DropIndexMeta(indexID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexMeta, indexID)
	return nil
}

func (s *MemStore) ListIndexMeta(tc TableColumn) ([]IndexMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []IndexMeta
	for _, m := range s.indexMeta {
		if m.Table == tc.Table && m.Column == tc.Column {
			out = append(out, m)
		}
	}
	return out, nil
}
