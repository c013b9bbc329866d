package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/kmerr"
	"github.com/grailbio/kmersearch/metastore"
)

type sliceCorpus []string

func (c sliceCorpus) NumRows() int { return len(c) }

func (c sliceCorpus) Row(i int) (alphabet.Seq, error) {
	return alphabet.Encode(alphabet.DNA2, c[i])
}

func baseConfig(k int) kmerconfig.Config {
	cfg := kmerconfig.DefaultConfig
	cfg.KmerSize = k
	return cfg
}

func TestRawscoreE1AndE2(t *testing.T) {
	cfg := baseConfig(4)
	cfg.OccurBitLen = 2
	store := metastore.NewMemStore()
	ctx, err := New(cfg, store)
	require.NoError(t, err)

	row1, _ := alphabet.Encode(alphabet.DNA2, "AAAAAAAA")
	row2, _ := alphabet.Encode(alphabet.DNA2, "ACGTACGT")
	row3, _ := alphabet.Encode(alphabet.DNA2, "TTTTTTTT")

	s1, err := ctx.Rawscore(row2, "ACGT")
	require.NoError(t, err)
	assert.Equal(t, 1, s1)
	s2, err := ctx.Rawscore(row1, "ACGT")
	require.NoError(t, err)
	assert.Equal(t, 0, s2)
	s3, err := ctx.Rawscore(row3, "ACGT")
	require.NoError(t, err)
	assert.Equal(t, 0, s3)

	s4, err := ctx.Rawscore(row1, "AAAA")
	require.NoError(t, err)
	assert.Equal(t, 1, s4)
}

func TestRawscoreIsCached(t *testing.T) {
	cfg := baseConfig(4)
	store := metastore.NewMemStore()
	ctx, err := New(cfg, store)
	require.NoError(t, err)

	row, _ := alphabet.Encode(alphabet.DNA2, "ACGTACGT")
	s1, err := ctx.Rawscore(row, "ACGT")
	require.NoError(t, err)
	assert.Equal(t, 1, ctx.rawscores.Len())

	s2, err := ctx.Rawscore(row, "ACGT")
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, ctx.rawscores.Len(), "second call must hit the cache, not grow it")
}

func TestPerformAndUndoHighfreqAnalysisE4(t *testing.T) {
	cfg := baseConfig(4)
	cfg.MaxAppearanceRate = 0.5
	store := metastore.NewMemStore()
	ctx, err := New(cfg, store)
	require.NoError(t, err)

	rows := make([]string, 0, 1001)
	for i := 0; i < 1000; i++ {
		rows = append(rows, "AAAAAAAA")
	}
	rows = append(rows, "CCCCCCCC")
	tc := metastore.TableColumn{Table: "seqs", Column: "seq"}

	stats, err := ctx.PerformHighfreqAnalysis(tc, sliceCorpus(rows), 4, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1001, stats.RowsScanned)
	assert.Equal(t, 1, stats.HighFreqKmers)

	_, err = ctx.UndoHighfreqAnalysis(tc)
	require.NoError(t, err)

	_, _, err = ctx.Consistent(tc, []bool{true}, nil)
	// PrecludeHighfreqKmer defaults to false, so Consistent never touches
	// the high-frequency cache and must succeed regardless of the undo.
	require.NoError(t, err)
}

func TestCacheCoherenceAfterUndoWithPreclude(t *testing.T) {
	cfg := baseConfig(4)
	cfg.PrecludeHighfreqKmer = true
	cfg.ForceUseParallelHighfreqKmerCache = true
	store := metastore.NewMemStore()
	ctx, err := New(cfg, store)
	require.NoError(t, err)

	tc := metastore.TableColumn{Table: "seqs", Column: "seq"}
	rows := sliceCorpus{"AAAAAAAA", "AAAAAAAA", "CCCCCCCC"}
	_, err = ctx.PerformHighfreqAnalysis(tc, rows, 2, t.TempDir())
	require.NoError(t, err)

	row, _ := alphabet.Encode(alphabet.DNA2, "AAAAAAAA")
	_, err = ctx.ExtractValue(tc, row)
	require.NoError(t, err, "preclude+shared cache must be attachable right after analysis")

	_, err = ctx.UndoHighfreqAnalysis(tc)
	require.NoError(t, err)

	_, err = ctx.ExtractValue(tc, row)
	require.Error(t, err, "any high-frequency operation after undo must fail, not silently use stale data")
	assert.Equal(t, kmerr.MissingMetadata, kmerr.KindOf(err))
}
