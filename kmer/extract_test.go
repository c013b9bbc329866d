package kmer

import (
	"testing"

	"github.com/grailbio/kmersearch/alphabet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExtractE1 is scenario E1 of spec.md section 8.2: at k=4, occur_bits=2,
// ACGT produces exactly one k-mer integer 0b00011011=27 at ordinal 0.
func TestExtractE1(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA2, "ACGT")
	require.NoError(t, err)
	keys, err := Extract(seq, 4, 2)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.EqualValues(t, 27, keys[0].Kmer)
	assert.EqualValues(t, 0, keys[0].Occur)
}

// TestExtractE2 is scenario E2: AAAAAAAA at k=4 produces five overlapping
// AAAA windows with ordinals 0..4; occur_bits=2 allows ordinals up to 3
// (limit 2^2=4), so the first four are emitted and the fifth is dropped.
func TestExtractE2(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA2, "AAAAAAAA")
	require.NoError(t, err)
	keys, err := Extract(seq, 4, 2)
	require.NoError(t, err)
	require.Len(t, keys, 4) // 8-4+1 = 5 windows, all k-mer value 0; ordinal 4 dropped
	for i, k := range keys {
		assert.EqualValues(t, 0, k.Kmer)
		assert.EqualValues(t, i, k.Occur, "window %d", i)
	}
}

// TestExtractOccurrenceDropsExcess verifies the "dropped, not capped" rule:
// with occur_bits=0 (limit 1), only the first occurrence of a repeated
// k-mer survives.
func TestExtractOccurrenceDropsExcess(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA2, "AAAAAAAA")
	require.NoError(t, err)
	keys, err := Extract(seq, 4, 0)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.EqualValues(t, 0, keys[0].Occur)
}

// TestExtractE5 is scenario E5: DNA4 "ARAA" at k=4 has degenerate product 2
// (R={A,G}), expanding to AAAA=0x00 and AGAA=0x20, both ordinal 0.
func TestExtractE5(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA4, "ARAA")
	require.NoError(t, err)
	keys, err := Extract(seq, 4, 2)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	got := map[uint64]uint32{keys[0].Kmer: keys[0].Occur, keys[1].Kmer: keys[1].Occur}
	assert.Equal(t, map[uint64]uint32{0x00: 0, 0x20: 0}, got)
}

// TestExtractE6 is scenario E6: DNA4 "NNNN" at k=4 has product 256>10, so
// the extractor emits zero k-mers.
func TestExtractE6(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA4, "NNNN")
	require.NoError(t, err)
	keys, err := Extract(seq, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// TestExtractionRoundTrip is property 2 of spec.md section 8.1: the set of
// k-mer integer forms emitted from a DNA2 Seq equals the set obtained by
// sliding a k-window over the decoded string and re-encoding each window.
func TestExtractionRoundTrip(t *testing.T) {
	s := "ACGTTGCATTACGGGT"
	k := 4
	seq, err := alphabet.Encode(alphabet.DNA2, s)
	require.NoError(t, err)
	keys, err := Extract(seq, k, 8)
	require.NoError(t, err)

	got := make(map[uint64]bool)
	for _, pk := range keys {
		got[pk.Kmer] = true
	}

	want := make(map[uint64]bool)
	for i := 0; i+k <= len(s); i++ {
		windowSeq, err := alphabet.Encode(alphabet.DNA2, s[i:i+k])
		require.NoError(t, err)
		windowKeys, err := Extract(windowSeq, k, 8)
		require.NoError(t, err)
		require.Len(t, windowKeys, 1)
		want[windowKeys[0].Kmer] = true
	}
	assert.Equal(t, want, got)
}

func TestExtractRejectsBadK(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA2, "ACGT")
	require.NoError(t, err)
	_, err = Extract(seq, 3, 8)
	require.Error(t, err)
	_, err = Extract(seq, 33, 8)
	require.Error(t, err)
}

func TestExtractShortSeqYieldsNoWindows(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA2, "ACG")
	require.NoError(t, err)
	keys, err := Extract(seq, 4, 8)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPackedKeyBytesLength(t *testing.T) {
	pk := PackedKey{Kmer: 27, KBits: 8, Occur: 0, OccurBits: 2}
	assert.Len(t, pk.Bytes(), 2) // ceil(10/8) = 2
}

func TestComparePartialOrdersByLengthThenBytes(t *testing.T) {
	short := PackedKey{Kmer: 1, KBits: 4, Occur: 0, OccurBits: 0}
	long := PackedKey{Kmer: 0, KBits: 16, Occur: 0, OccurBits: 0}
	assert.Equal(t, -1, ComparePartial(short, long))
	assert.Equal(t, 1, ComparePartial(long, short))
	assert.Equal(t, 0, ComparePartial(short, short))
}

func TestIntWidth(t *testing.T) {
	assert.Equal(t, U16, IntWidth(8))
	assert.Equal(t, U32, IntWidth(9))
	assert.Equal(t, U32, IntWidth(16))
	assert.Equal(t, U64, IntWidth(17))
	assert.Equal(t, U64, IntWidth(32))
}

func TestDistinctIntsDedupsWithinRow(t *testing.T) {
	seq, err := alphabet.Encode(alphabet.DNA2, "AAAAAAAA")
	require.NoError(t, err)
	ints, err := DistinctInts(seq, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, ints)
}
