package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/kmerconfig"
)

func encodeDNA2(t *testing.T, s string) alphabet.Seq {
	t.Helper()
	seq, err := alphabet.Encode(alphabet.DNA2, s)
	require.NoError(t, err)
	return seq
}

func TestRawScoreE1(t *testing.T) {
	row2 := encodeDNA2(t, "ACGTACGT")
	s, err := RawScore(row2, "ACGT", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, s)

	row1 := encodeDNA2(t, "AAAAAAAA")
	s, err = RawScore(row1, "ACGT", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, s)

	row3 := encodeDNA2(t, "TTTTTTTT")
	s, err = RawScore(row3, "ACGT", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, s)
}

func TestRawScoreE2(t *testing.T) {
	row1 := encodeDNA2(t, "AAAAAAAA")
	s, err := RawScore(row1, "AAAA", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, s, "only the ordinal-0 postings on each side coincide")

	row2 := encodeDNA2(t, "ACGTACGT")
	s, err = RawScore(row2, "AAAA", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, s)

	row3 := encodeDNA2(t, "TTTTTTTT")
	s, err = RawScore(row3, "AAAA", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, s)
}

func TestRawScoreSymmetryForDNA2(t *testing.T) {
	pairs := [][2]string{
		{"ACGTACGTACGT", "ACGTACGTGGGG"},
		{"AAAAAAAA", "AAAAAAAA"},
		{"ACGTTTTTACGA", "GGGGACGTACGT"},
	}
	for _, p := range pairs {
		s1, err := RawScore(encodeDNA2(t, p[0]), p[1], 4, 2)
		require.NoError(t, err)
		s2, err := RawScore(encodeDNA2(t, p[1]), p[0], 4, 2)
		require.NoError(t, err)
		assert.Equal(t, s1, s2, "rawscore(encode(s),t) must equal rawscore(encode(t),s) for pure ACGT inputs")
	}
}

func TestCorrectedScoreAddsMutualHighFrequencyCount(t *testing.T) {
	stored := encodeDNA2(t, "AAAAACGT")

	stubs := stubCache{highFreq: map[uint64]bool{
		0x00: true, // "AAAA" k-mer integer
	}}
	raw, err := RawScore(stored, "AAAA", 4, 2)
	require.NoError(t, err)
	corrected, err := CorrectedScore(stored, "AAAA", 4, 2, stubs)
	require.NoError(t, err)
	assert.Equal(t, raw+1, corrected, "AAAA is mutual and high-frequency, contributing exactly one correction")
}

func TestCorrectedScoreNilCacheMeansNoCorrection(t *testing.T) {
	stored := encodeDNA2(t, "AAAAACGT")
	raw, err := RawScore(stored, "AAAA", 4, 2)
	require.NoError(t, err)
	corrected, err := CorrectedScore(stored, "AAAA", 4, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, raw, corrected)
}

type stubCache struct {
	highFreq map[uint64]bool
}

func (s stubCache) Contains(kmerInt uint64) bool                 { return s.highFreq[kmerInt] }
func (s stubCache) Fingerprint() kmerconfig.Fingerprint           { return kmerconfig.Fingerprint{} }
func (s stubCache) Close() error                                  { return nil }
