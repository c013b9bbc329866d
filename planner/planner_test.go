package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/metastore"
)

func seedIndex(t *testing.T, store *metastore.MemStore, id string, tc metastore.TableColumn, fp kmerconfig.Fingerprint) {
	t.Helper()
	require.NoError(t, store.PutIndexMeta(metastore.IndexMeta{
		IndexID:     id,
		Table:       tc.Table,
		Column:      tc.Column,
		Fingerprint: fp,
	}))
}

func TestGateLeavesMatchingIndexUntouched(t *testing.T) {
	store := metastore.NewMemStore()
	tc := metastore.TableColumn{Table: "seqs", Column: "dna"}
	cfg := kmerconfig.DefaultConfig
	cfg.KmerSize = 16
	seedIndex(t, store, "idx1", tc, cfg.Fingerprint())

	p := &Path{Kind: Leaf, IndexID: "idx1", StartupCost: 1, TotalCost: 2}
	out, err := Gate(tc, []*Path{p}, cfg, store)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.False(t, p.Disqualified)
	assert.Equal(t, 2.0, p.TotalCost)
}

func TestGateDisqualifiesEveryMismatchedCoreIndex(t *testing.T) {
	store := metastore.NewMemStore()
	tc := metastore.TableColumn{Table: "seqs", Column: "dna"}
	built := kmerconfig.DefaultConfig
	built.KmerSize = 16
	seedIndex(t, store, "idx1", tc, built.Fingerprint())

	current := built
	current.KmerSize = 20 // diverges: no other index has a matching fingerprint

	p := &Path{Kind: Leaf, IndexID: "idx1"}
	out, err := Gate(tc, []*Path{p}, current, store)
	require.NoError(t, err)
	assert.Len(t, out, 1, "no matching sibling exists, so nothing can be synthesized")
	assert.True(t, p.Disqualified)
	assert.Equal(t, SentinelCost, p.TotalCost)
	assert.Equal(t, SentinelCost, p.StartupCost)
}

func TestGateLeavesNonCoreIndexUntouched(t *testing.T) {
	store := metastore.NewMemStore()
	tc := metastore.TableColumn{Table: "seqs", Column: "dna"}
	cfg := kmerconfig.DefaultConfig

	p := &Path{Kind: Leaf, IndexID: "btree_idx", StartupCost: 5, TotalCost: 5}
	out, err := Gate(tc, []*Path{p}, cfg, store)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.False(t, p.Disqualified)
}

func TestGatePropagatesThroughCompositePaths(t *testing.T) {
	store := metastore.NewMemStore()
	tc := metastore.TableColumn{Table: "seqs", Column: "dna"}
	built := kmerconfig.DefaultConfig
	built.KmerSize = 16
	seedIndex(t, store, "idx1", tc, built.Fingerprint())

	current := built
	current.KmerSize = 24

	leaf := &Path{Kind: Leaf, IndexID: "idx1"}
	and := &Path{Kind: And, Children: []*Path{leaf}}
	out, err := Gate(tc, []*Path{and}, current, store)
	require.NoError(t, err)
	assert.True(t, leaf.Disqualified)
	assert.True(t, and.Disqualified)
	assert.Equal(t, SentinelCost, and.TotalCost)
	assert.Len(t, out, 1)
}

func TestGateSynthesizesAlternativeFromMatchingSibling(t *testing.T) {
	store := metastore.NewMemStore()
	tc := metastore.TableColumn{Table: "seqs", Column: "dna"}
	stale := kmerconfig.DefaultConfig
	stale.KmerSize = 16
	fresh := kmerconfig.DefaultConfig
	fresh.KmerSize = 24
	seedIndex(t, store, "idx_stale", tc, stale.Fingerprint())
	seedIndex(t, store, "idx_fresh", tc, fresh.Fingerprint())

	leaf := &Path{Kind: Leaf, IndexID: "idx_stale", Clauses: []string{"dna LIKE 'ACGT%'"}}
	out, err := Gate(tc, []*Path{leaf}, fresh, store)
	require.NoError(t, err)
	require.Len(t, out, 2)

	original := out[0]
	alt := out[1]
	assert.True(t, original.Disqualified)
	assert.False(t, alt.Disqualified)
	assert.Equal(t, "idx_fresh", alt.IndexID)
	assert.Equal(t, original.Clauses, alt.Clauses)
}
