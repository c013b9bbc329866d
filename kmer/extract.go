package kmer

import (
	"fmt"

	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/kmerr"
)

// dna2CodeAt returns the 2-bit code at symbol position i of a DNA2-packed
// Seq, matching the MSB-first-within-byte layout alphabet.dna2Pack writes.
func dna2CodeAt(raw []byte, i int) uint8 {
	byteIdx := i >> 2
	shift := uint(6 - 2*(i&3))
	return (raw[byteIdx] >> shift) & 3
}

// dna4MaskAt returns the 4-bit IUPAC bitmask at symbol position i of a
// DNA4-packed Seq, matching alphabet.encodeDNA4's high-nibble-first layout.
func dna4MaskAt(raw []byte, i int) uint8 {
	byteIdx := i >> 1
	if i&1 == 0 {
		return raw[byteIdx] >> 4
	}
	return raw[byteIdx] & 0xf
}

// Extract runs the C2 extractor of spec.md section 4.2 over seq, producing
// packed keys with occurrence ordinals. It dispatches on seq.Alphabet():
// DNA2 windows are taken directly; DNA4 windows are Cartesian-expanded into
// their constituent DNA2 k-mers (section 4.2.2), each tagged under the
// shared occurrence counter as though it had been emitted directly
// (section 4.2.2: "each expansion... receives its own occurrence ordinal
// independently under the DNA2 tagging rules").
func Extract(seq alphabet.Seq, k, occurBits int) ([]PackedKey, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	n := seq.SymbolLength()
	counts := make(map[uint64]uint32)
	var out []PackedKey
	switch seq.Alphabet() {
	case alphabet.DNA2:
		extractDNA2(seq.Bytes(), n, k, occurBits, counts, &out)
	case alphabet.DNA4:
		extractDNA4(seq.Bytes(), n, k, occurBits, counts, &out)
	default:
		return nil, kmerr.E(kmerr.InvalidInput, fmt.Sprintf("unsupported alphabet %v", seq.Alphabet()))
	}
	return out, nil
}

// ExtractString encodes s under a and runs Extract over it; this is the
// text-query path of section 4.5 operation 2 (extract_query_keys).
func ExtractString(s string, a alphabet.Alphabet, k, occurBits int) ([]PackedKey, error) {
	seq, err := alphabet.Encode(a, s)
	if err != nil {
		return nil, err
	}
	return Extract(seq, k, occurBits)
}

// emit applies the occurrence-ordinal rule of section 4.2.1 and 4.2.2 to a
// single fully-materialized k-mer value, appending to *out if the ordinal
// still fits in occurBits. counts is shared across an entire extraction
// call (all positions, and for DNA4 all expansions of all positions), since
// occurrence tracking is keyed on k-mer value, not position.
func emit(kmerBits uint64, k, occurBits int, counts map[uint64]uint32, out *[]PackedKey) {
	counts[kmerBits]++
	ordinal := counts[kmerBits] - 1
	limit := uint32(1) << uint(occurBits)
	if ordinal >= limit {
		return // dropped, not capped (section 4.2.1)
	}
	*out = append(*out, PackedKey{
		Kmer:      kmerBits,
		KBits:     2 * k,
		Occur:     ordinal,
		OccurBits: occurBits,
	})
}

// extractDNA2 slides a k-symbol window across codes, maintaining the
// rolling k-mer value the way the teacher's fusion.kmerizer.Scan does
// (shift left 2, OR in the new code, mask to width) rather than
// recomputing the whole window from scratch at every position.
func extractDNA2(raw []byte, n, k, occurBits int, counts map[uint64]uint32, out *[]PackedKey) {
	if n < k {
		return
	}
	mask := kmerMask(k)
	var kmerBits uint64
	for i := 0; i < k; i++ {
		kmerBits = (kmerBits << 2) | uint64(dna2CodeAt(raw, i))
	}
	emit(kmerBits&mask, k, occurBits, counts, out)
	for i := k; i < n; i++ {
		kmerBits = ((kmerBits << 2) | uint64(dna2CodeAt(raw, i))) & mask
		emit(kmerBits, k, occurBits, counts, out)
	}
}

// maxDegenerateProduct is the combinatorial ceiling of section 4.2.2: a
// DNA4 window is skipped entirely once the product of its per-position
// base-option counts exceeds this.
const maxDegenerateProduct = 10

// popcount4 returns the number of set bits in the low nibble of mask.
func popcount4(mask uint8) int {
	n := 0
	for mask != 0 {
		n += int(mask & 1)
		mask >>= 1
	}
	return n
}

// baseCodesOf returns the 2-bit DNA2 codes (0=A,1=C,2=G,3=T) a DNA4 nibble
// mask denotes, in ascending order. mask bit i corresponds to code i
// (bit0=A, bit1=C, bit2=G, bit3=T — alphabet.go's DNA4 bit assignment).
func baseCodesOf(mask uint8) []uint8 {
	var codes []uint8
	for code := uint8(0); code < 4; code++ {
		if mask&(1<<code) != 0 {
			codes = append(codes, code)
		}
	}
	return codes
}

// extractDNA4 implements section 4.2.2: for each window, compute the
// degenerate product via an early-exit running multiply (equivalent in
// cost to the spec's "count positions by {2,3,4}-way degeneracy" pre-check,
// since both are O(k) and both bail the instant the running product
// exceeds 10), then Cartesian-expand windows that pass.
func extractDNA4(raw []byte, n, k, occurBits int, counts map[uint64]uint32, out *[]PackedKey) {
	if n < k {
		return
	}
	masks := make([]uint8, n)
	for i := 0; i < n; i++ {
		masks[i] = dna4MaskAt(raw, i)
	}
	for start := 0; start+k <= n; start++ {
		window := masks[start : start+k]
		product := 1
		skip := false
		for _, m := range window {
			product *= popcount4(m)
			if product > maxDegenerateProduct {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		expandWindow(window, k, occurBits, counts, out)
	}
}

// expandWindow enumerates every non-degenerate DNA2 k-mer a DNA4 window
// denotes, by a mixed-radix counter over each position's base options, and
// emits each one under the shared occurrence counter.
func expandWindow(window []uint8, k, occurBits int, counts map[uint64]uint32, out *[]PackedKey) {
	options := make([][]uint8, k)
	for i, m := range window {
		options[i] = baseCodesOf(m)
	}
	indices := make([]int, k)
	for {
		var kmerBits uint64
		for i := 0; i < k; i++ {
			kmerBits = (kmerBits << 2) | uint64(options[i][indices[i]])
		}
		emit(kmerBits, k, occurBits, counts, out)

		pos := k - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(options[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return
		}
	}
}

// DistinctInts returns the distinct k-mer integer values seq contains,
// ignoring occurrence ordinals entirely. This is the form the frequency
// analyzer (component C3) consumes: section 4.3 step 2 extracts "the row's
// distinct k-mers... occurrence ordinals are not used here". Extracting
// with occurBits=0 already yields exactly one packed key per distinct
// value (every repeat past the first has ordinal>=1 and is dropped), so no
// separate dedup pass is needed.
func DistinctInts(seq alphabet.Seq, k int) ([]uint64, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	keys, err := Extract(seq, k, 0)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(keys))
	for i, pk := range keys {
		out[i] = pk.Kmer
	}
	return out, nil
}
