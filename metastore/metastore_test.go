package metastore

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/kmersearch/kmerconfig"
)

// storeFactories lets every test below run against both Store
// implementations without duplicating the test bodies.
func storeFactories(t *testing.T) map[string]func() Store {
	dir := t.TempDir()
	n := 0
	return map[string]func() Store{
		"MemStore": func() Store {
			return NewMemStore()
		},
		"FileStore": func() Store {
			n++
			fs, err := NewFileStore(fmt.Sprintf("%s/store%d", dir, n))
			require.NoError(t, err)
			return fs
		},
	}
}

func TestStoreGetFingerprintMissing(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			tc := TableColumn{Table: "seqs", Column: "dna"}
			_, ok, err := store.GetFingerprint(tc)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreCommitAndGetFingerprint(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			tc := TableColumn{Table: "seqs", Column: "dna"}
			cfg := kmerconfig.DefaultConfig
			cfg.KmerSize = 16
			fp := Fingerprint{Fingerprint: cfg.Fingerprint(), Timestamp: 1234}

			require.NoError(t, store.CommitAnalysis(tc, fp, []uint64{7, 99, 0}))

			got, ok, err := store.GetFingerprint(tc)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, fp, got)
		})
	}
}

func TestStoreStreamHighFreqBatches(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			tc := TableColumn{Table: "seqs", Column: "dna"}
			cfg := kmerconfig.DefaultConfig
			want := []uint64{1, 2, 3, 4, 5, 6, 7}
			require.NoError(t, store.CommitAnalysis(tc, Fingerprint{Fingerprint: cfg.Fingerprint()}, want))

			var got []uint64
			var maxBatch int
			require.NoError(t, store.StreamHighFreq(tc, 3, func(batch []uint64) error {
				if len(batch) > maxBatch {
					maxBatch = len(batch)
				}
				got = append(got, batch...)
				return nil
			}))

			sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
			assert.Equal(t, want, got)
			assert.LessOrEqual(t, maxBatch, 3)
		})
	}
}

func TestStoreStreamHighFreqMissing(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			tc := TableColumn{Table: "seqs", Column: "dna"}
			err := store.StreamHighFreq(tc, 10, func([]uint64) error { return nil })
			require.Error(t, err)
		})
	}
}

func TestStoreUndoAnalysis(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			tc := TableColumn{Table: "seqs", Column: "dna"}
			cfg := kmerconfig.DefaultConfig
			require.NoError(t, store.CommitAnalysis(tc, Fingerprint{Fingerprint: cfg.Fingerprint()}, []uint64{1}))

			require.NoError(t, store.UndoAnalysis(tc))

			_, ok, err := store.GetFingerprint(tc)
			require.NoError(t, err)
			assert.False(t, ok)

			// Undoing an already-absent analysis is a no-op, not an error:
			// the host may retry an undo after a partial failure.
			require.NoError(t, store.UndoAnalysis(tc))
		})
	}
}

func TestStoreIndexMetaCRUD(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			tc := TableColumn{Table: "seqs", Column: "dna"}
			other := TableColumn{Table: "seqs", Column: "protein"}
			m1 := IndexMeta{IndexID: "idx1", Table: tc.Table, Column: tc.Column, CreatedAt: 1}
			m2 := IndexMeta{IndexID: "idx2", Table: tc.Table, Column: tc.Column, CreatedAt: 2}
			m3 := IndexMeta{IndexID: "idx3", Table: other.Table, Column: other.Column, CreatedAt: 3}

			require.NoError(t, store.PutIndexMeta(m1))
			require.NoError(t, store.PutIndexMeta(m2))
			require.NoError(t, store.PutIndexMeta(m3))

			listed, err := store.ListIndexMeta(tc)
			require.NoError(t, err)
			assert.Len(t, listed, 2)

			// Re-putting an IndexID replaces it rather than duplicating it.
			m1.PrecludeHighfreqKmer = true
			require.NoError(t, store.PutIndexMeta(m1))
			listed, err = store.ListIndexMeta(tc)
			require.NoError(t, err)
			require.Len(t, listed, 2)
			for _, m := range listed {
				if m.IndexID == "idx1" {
					assert.True(t, m.PrecludeHighfreqKmer)
				}
			}

			require.NoError(t, store.DropIndexMeta("idx1"))
			listed, err = store.ListIndexMeta(tc)
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, "idx2", listed[0].IndexID)

			otherListed, err := store.ListIndexMeta(other)
			require.NoError(t, err)
			require.Len(t, otherListed, 1)
			assert.Equal(t, "idx3", otherListed[0].IndexID)
		})
	}
}
