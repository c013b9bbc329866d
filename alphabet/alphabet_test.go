package alphabet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		alphabet Alphabet
		seq      string
	}{
		{DNA2, "ACGT"},
		{DNA2, "acgtACGT"},
		{DNA2, "A"},
		{DNA2, "TTTTTTTTTTTTT"},
		{DNA2, ""},
		{DNA4, "ACGTU"},
		{DNA4, "ACGTMRWSYKVHDBN"},
		{DNA4, "acgtn"},
	}
	for _, tc := range tests {
		seq, err := Encode(tc.alphabet, tc.seq)
		require.NoError(t, err)
		got, err := Decode(seq)
		require.NoError(t, err)
		assert.Equal(t, canonicalize(tc.seq), got)
	}
}

// canonicalize upper-cases and folds U to T, since both alphabets treat U as
// an alias of T (spec.md section 4.1).
func canonicalize(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c == 'U' {
			c = 'T'
		}
		out[i] = c
	}
	return string(out)
}

func TestDNA2RejectsDegenerateCodes(t *testing.T) {
	_, err := Encode(DNA2, "ACGN")
	require.Error(t, err)
}

func TestDNA2RejectsInvalidCharPosition(t *testing.T) {
	_, err := Encode(DNA2, "ACGTXACGT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4")
}

func TestDNA4AcceptsAllDegenerateCodes(t *testing.T) {
	for _, c := range "ACGTUMRWSYKVHDBN" {
		seq, err := Encode(DNA4, string(c))
		require.NoError(t, err, "code %q", c)
		got, err := Decode(seq)
		require.NoError(t, err)
		want := string(c)
		if c == 'U' {
			want = "T"
		}
		assert.Equal(t, want, got)
	}
}

func TestEqualIsAlphabetSensitive(t *testing.T) {
	a, err := Encode(DNA2, "ACGT")
	require.NoError(t, err)
	b, err := Encode(DNA4, "ACGT")
	require.NoError(t, err)
	assert.False(t, a.Equal(b), "DNA2 and DNA4 encodings of the same bases must never compare equal")
}

func TestEqualSameAlphabet(t *testing.T) {
	a, err := Encode(DNA2, "ACGTACGT")
	require.NoError(t, err)
	b, err := Encode(DNA2, "ACGTACGT")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	c, err := Encode(DNA2, "ACGTACGA")
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestScalarAndBatchAgree(t *testing.T) {
	// dna2Pack dispatches to the build-tag-selected batch path; dna2PackScalar
	// is the reference. Both must agree on every length mod 4, since the
	// batch path only unrolls full quads and falls back to scalar on the
	// remainder.
	bases := "ACGTACGTACGTACGTACG"
	for n := 0; n <= len(bases); n++ {
		s := bases[:n]
		dst1 := make([]byte, byteLen(n*2))
		dst2 := make([]byte, byteLen(n*2))
		require.NoError(t, dna2Pack(dst1, s, 0))
		require.NoError(t, dna2PackScalar(dst2, s, 0))
		assert.Equal(t, dst2, dst1, "length %d", n)
	}
}

func TestCompareOrdering(t *testing.T) {
	a, err := Encode(DNA2, "AAAA")
	require.NoError(t, err)
	b, err := Encode(DNA2, "AAAC")
	require.NoError(t, err)
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestSymbolLength(t *testing.T) {
	seq, err := Encode(DNA4, "ACGTACGT")
	require.NoError(t, err)
	assert.Equal(t, 8, seq.SymbolLength())
	assert.Equal(t, 32, seq.BitLen())
}
