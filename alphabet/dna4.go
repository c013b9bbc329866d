package alphabet

import (
	"strings"

	"github.com/grailbio/kmersearch/kmerr"
)

// DNA4 packs one base per nibble, high nibble first within a byte, using a
// bit per constituent base: bit0=A, bit1=C, bit2=G, bit3=T. This is the same
// bit assignment the teacher's biosimd.SeqASCIITable decodes
// ('=',A,C,M,G,R,S,V,T,W,Y,H,K,D,B,N for nibble values 0-15), but encode here
// additionally accepts every IUPAC degenerate letter rather than collapsing
// anything non-ACGT to N the way biosimd.ASCIIToSeq8Inplace does, since
// spec.md section 4.1 requires degenerate input to round-trip losslessly.
var asciiToDNA4 [256]uint8

// dna4ToASCII mirrors biosimd.SeqASCIITable's nibble-to-letter assignment.
var dna4ToASCII = [16]byte{
	0:  'N', // 0000 has no base bits set; not a legal encode output, but
	1:  'A',
	2:  'C',
	3:  'M',
	4:  'G',
	5:  'R',
	6:  'S',
	7:  'V',
	8:  'T',
	9:  'W',
	10: 'Y',
	11: 'H',
	12: 'K',
	13: 'D',
	14: 'B',
	15: 'N',
}

const (
	baseA uint8 = 1 << 0
	baseC uint8 = 1 << 1
	baseG uint8 = 1 << 2
	baseT uint8 = 1 << 3
)

func init() {
	set := func(letter byte, bits uint8) {
		asciiToDNA4[letter] = bits
		if letter >= 'A' && letter <= 'Z' {
			asciiToDNA4[letter-'A'+'a'] = bits
		}
	}
	set('A', baseA)
	set('C', baseC)
	set('G', baseG)
	set('T', baseT)
	set('U', baseT)
	set('M', baseA|baseC)
	set('R', baseA|baseG)
	set('W', baseA|baseT)
	set('S', baseC|baseG)
	set('Y', baseC|baseT)
	set('K', baseG|baseT)
	set('V', baseA|baseC|baseG)
	set('H', baseA|baseC|baseT)
	set('D', baseA|baseG|baseT)
	set('B', baseC|baseG|baseT)
	set('N', baseA|baseC|baseG|baseT)
}

func encodeDNA4(s string) (Seq, error) {
	n := len(s)
	bitLen := n * 4
	raw := make([]byte, byteLen(bitLen))
	for i := 0; i < n; i++ {
		bits := asciiToDNA4[s[i]]
		if bits == 0 {
			return Seq{}, kmerr.E(kmerr.InvalidInput, "invalid DNA4 character", string(s[i]), "at position", i)
		}
		byteIdx := i >> 1
		if i&1 == 0 {
			raw[byteIdx] |= bits << 4
		} else {
			raw[byteIdx] |= bits
		}
	}
	return Seq{alphabet: DNA4, bitLen: bitLen, raw: raw}, nil
}

func decodeDNA4(seq Seq) (string, error) {
	n := seq.SymbolLength()
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		byteIdx := i >> 1
		var bits uint8
		if i&1 == 0 {
			bits = seq.raw[byteIdx] >> 4
		} else {
			bits = seq.raw[byteIdx] & 0xf
		}
		b.WriteByte(dna4ToASCII[bits])
	}
	return b.String(), nil
}
