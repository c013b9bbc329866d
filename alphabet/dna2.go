package alphabet

import (
	"strings"

	"github.com/grailbio/kmersearch/kmerr"
)

// asciiToDNA2 maps A/a,C/c,G/g,T/t,U/u to their 2-bit codes and everything
// else to invalidBase.
var asciiToDNA2 [256]uint8

const invalidBase = 0xff

func init() {
	for i := range asciiToDNA2 {
		asciiToDNA2[i] = invalidBase
	}
	asciiToDNA2['A'], asciiToDNA2['a'] = 0, 0
	asciiToDNA2['C'], asciiToDNA2['c'] = 1, 1
	asciiToDNA2['G'], asciiToDNA2['g'] = 2, 2
	asciiToDNA2['T'], asciiToDNA2['t'] = 3, 3
	asciiToDNA2['U'], asciiToDNA2['u'] = 3, 3
}

var dna2ToASCII = [4]byte{'A', 'C', 'G', 'T'}

func encodeDNA2(s string) (Seq, error) {
	n := len(s)
	bitLen := n * 2
	raw := make([]byte, byteLen(bitLen))
	if err := dna2Pack(raw, s, 0); err != nil {
		return Seq{}, err
	}
	return Seq{alphabet: DNA2, bitLen: bitLen, raw: raw}, nil
}

func decodeDNA2(seq Seq) (string, error) {
	n := seq.SymbolLength()
	var b strings.Builder
	b.Grow(n)
	dna2Unpack(&b, seq.raw, n)
	return b.String(), nil
}

// dna2PackScalar packs s into dst, most-significant bit pair first within
// each byte, validating every character. It is the reference
// implementation; dna2PackBatch (build-tag selected) must agree with it
// exactly on every input (spec.md section 4.1's scalar/batch equivalence
// requirement).
func dna2PackScalar(dst []byte, s string, posOffset int) error {
	for i := 0; i < len(s); i++ {
		code := asciiToDNA2[s[i]]
		if code == invalidBase {
			return kmerr.E(kmerr.InvalidInput, "invalid DNA2 character", string(s[i]), "at position", i+posOffset)
		}
		byteIdx := i >> 2
		shift := uint(6 - 2*(i&3))
		dst[byteIdx] |= code << shift
	}
	return nil
}

func dna2UnpackScalar(b *strings.Builder, raw []byte, n int) {
	for i := 0; i < n; i++ {
		byteIdx := i >> 2
		shift := uint(6 - 2*(i&3))
		code := (raw[byteIdx] >> shift) & 3
		b.WriteByte(dna2ToASCII[code])
	}
}
