package ginindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/querycache"
)

type stubHF struct {
	highFreq map[uint64]bool
}

func (s stubHF) Contains(kmerInt uint64) bool               { return s.highFreq[kmerInt] }
func (s stubHF) Fingerprint() kmerconfig.Fingerprint        { return kmerconfig.Fingerprint{} }
func (s stubHF) Close() error                                { return nil }

func TestExtractIndexKeysPrecludesHighFrequency(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA2, "AAAAACGT")
	require.NoError(t, err)
	hf := stubHF{highFreq: map[uint64]bool{0x00: true}}

	all, err := ExtractIndexKeys(seq, 4, 2, false, nil)
	require.NoError(t, err)
	filtered, err := ExtractIndexKeys(seq, 4, 2, true, hf)
	require.NoError(t, err)

	assert.Greater(t, len(all), len(filtered))
	for _, k := range filtered {
		assert.False(t, hf.Contains(k.HashForm()))
	}
}

func TestExtractQueryKeysCaches(t *testing.T) {
	patterns := querycache.NewPatternCache(8)
	keys1, err := ExtractQueryKeys("ACGT", alphabet.DNA4, 4, 2, false, nil, patterns)
	require.NoError(t, err)
	require.Len(t, keys1, 1)

	keys2, err := ExtractQueryKeys("ACGT", alphabet.DNA4, 4, 2, false, nil, patterns)
	require.NoError(t, err)
	assert.Equal(t, keys1, keys2)
	assert.Equal(t, 1, patterns.Len())
}

func TestAdjustedMinScoreSubtractsHighFrequencyCount(t *testing.T) {
	scores := querycache.NewMinScoreCache(8)
	seq, err := alphabet.Encode(alphabet.DNA4, "ACGT")
	require.NoError(t, err)
	keys, err := ExtractQueryKeys("ACGT", seq.Alphabet(), 4, 2, false, nil, querycache.NewPatternCache(1))
	require.NoError(t, err)

	hf := stubHF{highFreq: map[uint64]bool{keys[0].HashForm(): true}}
	got := AdjustedMinScore(keys, 1, hf, scores)
	assert.Equal(t, 0, got, "the single query key is high-frequency, so min_score 1 is reduced to 0")
}

func TestConsistentSetsRecheckOnlyWhenPassing(t *testing.T) {
	scores := querycache.NewMinScoreCache(8)
	keys, err := ExtractQueryKeys("ACGT", alphabet.DNA4, 4, 2, false, nil, querycache.NewPatternCache(1))
	require.NoError(t, err)

	ok, recheck := Consistent([]bool{true}, keys, 1, nil, scores)
	assert.True(t, ok)
	assert.True(t, recheck)

	ok, recheck = Consistent([]bool{false}, keys, 1, nil, scores)
	assert.False(t, ok)
	assert.False(t, recheck)
}
