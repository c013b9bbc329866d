// Package alphabet implements the DNA2 and DNA4 bit-packed codecs of
// spec.md section 4.1 (component C1). It follows the packing conventions
// the teacher's biosimd package already uses for 4-bit-per-base .bam data
// (biosimd.ASCIIToSeq8/PackSeq/UnpackAndReplaceSeq): big-endian nibbles,
// high nibble first within a byte. DNA4's sixteen codes line up exactly
// with IUPAC degenerate bit-ORs the way biosimd.SeqASCIITable already lists
// them, so decode reuses that table; DNA2 packs two bits per base,
// most-significant pair first, which biosimd does not offer (its ASCIITo2bit
// variant is little-endian-within-byte), so this package implements its own
// scalar/batch split for that alphabet.
package alphabet

import (
	"fmt"

	"github.com/grailbio/kmersearch/kmerr"
)

// Alphabet identifies which of the two bit-packing schemes a Seq uses.
type Alphabet uint8

const (
	// DNA2 packs A/C/G/T (U treated as T) into 2 bits per base.
	DNA2 Alphabet = iota
	// DNA4 packs A/C/G/T/U and the eleven IUPAC degenerate codes into 4
	// bits per base, one bit per constituent base, ORed together.
	DNA4
)

func (a Alphabet) String() string {
	switch a {
	case DNA2:
		return "DNA2"
	case DNA4:
		return "DNA4"
	default:
		return fmt.Sprintf("Alphabet(%d)", uint8(a))
	}
}

// Width returns the number of bits a single symbol occupies under a.
func (a Alphabet) Width() int {
	switch a {
	case DNA2:
		return 2
	case DNA4:
		return 4
	default:
		panic(a)
	}
}

// Seq is a length-prefixed bitstring plus width-per-symbol metadata, the
// "packed sequence" of spec.md section 3.1. It is immutable once
// constructed; all core routines borrow it.
type Seq struct {
	alphabet Alphabet
	bitLen   int
	raw      []byte
}

// Alphabet reports which codec produced s.
func (s Seq) Alphabet() Alphabet { return s.alphabet }

// BitLen is the number of meaningful bits in s.Bytes(); always a multiple of
// s.Alphabet().Width().
func (s Seq) BitLen() int { return s.bitLen }

// Bytes returns s's raw packed bytes. The caller must not modify them: Seq
// is owned by the storage layer and all core routines only borrow it
// (spec.md section 3.2).
func (s Seq) Bytes() []byte { return s.raw }

// SymbolLength returns the number of symbols encoded in s.
func (s Seq) SymbolLength() int {
	if s.bitLen == 0 {
		return 0
	}
	return s.bitLen / s.alphabet.Width()
}

// Equal is bit-exact: a DNA2 sequence never equals a DNA4 sequence, even if
// they denote the same bases (spec.md section 4.1).
func (s Seq) Equal(o Seq) bool {
	if s.alphabet != o.alphabet || s.bitLen != o.bitLen {
		return false
	}
	if len(s.raw) != len(o.raw) {
		return false
	}
	for i := range s.raw {
		if s.raw[i] != o.raw[i] {
			return false
		}
	}
	return true
}

// Compare orders sequences lexicographically on their raw bit
// representation, breaking ties by byte length, then bit length, then
// alphabet. It is the
// general-purpose analogue of the posting-key-specific ComparePartial used
// by the inverted index hooks (package ginindex).
func (s Seq) Compare(o Seq) int {
	n := len(s.raw)
	if len(o.raw) < n {
		n = len(o.raw)
	}
	for i := 0; i < n; i++ {
		if s.raw[i] != o.raw[i] {
			if s.raw[i] < o.raw[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(s.raw) < len(o.raw):
		return -1
	case len(s.raw) > len(o.raw):
		return 1
	}
	switch {
	case s.bitLen < o.bitLen:
		return -1
	case s.bitLen > o.bitLen:
		return 1
	}
	if s.alphabet != o.alphabet {
		if s.alphabet < o.alphabet {
			return -1
		}
		return 1
	}
	return 0
}

// byteLen returns ceil(bits/8).
func byteLen(bits int) int { return (bits + 7) / 8 }

// Encode packs s into the given alphabet. It rejects any character the
// alphabet does not define; DNA2 rejects degenerate codes outright, DNA4
// accepts them.
func Encode(a Alphabet, s string) (Seq, error) {
	switch a {
	case DNA2:
		return encodeDNA2(s)
	case DNA4:
		return encodeDNA4(s)
	default:
		return Seq{}, kmerr.E(kmerr.InvalidInput, fmt.Sprintf("unsupported alphabet %v", a))
	}
}

// Decode unpacks seq back into its textual representation.
func Decode(seq Seq) (string, error) {
	switch seq.alphabet {
	case DNA2:
		return decodeDNA2(seq)
	case DNA4:
		return decodeDNA4(seq)
	default:
		return "", kmerr.E(kmerr.InvalidInput, fmt.Sprintf("unsupported alphabet %v", seq.alphabet))
	}
}
