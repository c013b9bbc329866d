// Package fht implements the file-backed hash table of spec.md section 4.4
// (component C4): the out-of-core counter table the frequency analyzer
// (package analysis) uses to tally per-k-mer row counts too large to hold
// entirely in memory. The on-disk layout follows the fixed-field,
// magic+version+counts header convention the example pack's qcow2 reader
// uses for its own disk image header (zchee-go-qcow2/header.go), adapted
// to this package's three counter-table variants.
package fht

import (
	"encoding/binary"
	"io"

	"github.com/grailbio/kmersearch/kmerr"
)

// Variant selects the key width and on-disk layout of a Table, chosen by
// the caller from the configured k-mer size via VariantFor.
type Variant uint32

const (
	// FHT16 is a direct array of 2^16 uint64 counters, no bucket chains.
	FHT16 Variant = 16
	// FHT32 is a bucket-directory-plus-chain table with 32-bit keys.
	FHT32 Variant = 32
	// FHT64 is a bucket-directory-plus-chain table with 64-bit keys.
	FHT64 Variant = 64
)

// VariantFor picks the narrowest variant that can hold a k-mer of the
// given key width (bits), mirroring kmer.IntWidth's 16/32/64 selection.
func VariantFor(keyWidthBits int) Variant {
	switch {
	case keyWidthBits <= 16:
		return FHT16
	case keyWidthBits <= 32:
		return FHT32
	default:
		return FHT64
	}
}

const (
	magic         = uint32(0x46_48_54_31) // "FHT1"
	headerVersion = uint32(1)
	headerSize    = 40 // magic,version,variant: 3x4=12, then 4 unused bytes; bucketcount,entrycount,nextappend: 3x8=24
)

// header is the fixed-size file header of spec.md section 6.4: magic,
// version, key width, entry count, and next-append offset. Endian is
// platform-native per the spec; this implementation always writes
// little-endian, which is native on every architecture the teacher's
// module targets (amd64, arm64).
type header struct {
	magic       uint32
	version     uint32
	variant     Variant
	bucketCount uint64 // unused (0) for FHT16
	entryCount  uint64
	nextAppend  uint64 // file offset where the next chain entry may be appended
}

func (h *header) write(w io.WriterAt) error {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.variant))
	binary.LittleEndian.PutUint64(buf[16:24], h.bucketCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.entryCount)
	binary.LittleEndian.PutUint64(buf[32:40], h.nextAppend)
	if _, err := w.WriteAt(buf, 0); err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "writing FHT header", err)
	}
	return nil
}

func readHeader(r io.ReaderAt, path string) (*header, error) {
	buf := make([]byte, headerSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, kmerr.E(kmerr.ResourceExhausted, "reading FHT header", path, err)
	}
	h := &header{
		magic:       binary.LittleEndian.Uint32(buf[0:4]),
		version:     binary.LittleEndian.Uint32(buf[4:8]),
		variant:     Variant(binary.LittleEndian.Uint32(buf[8:12])),
		bucketCount: binary.LittleEndian.Uint64(buf[16:24]),
		entryCount:  binary.LittleEndian.Uint64(buf[24:32]),
		nextAppend:  binary.LittleEndian.Uint64(buf[32:40]),
	}
	if h.magic != magic {
		return nil, kmerr.E(kmerr.Corruption, "bad FHT magic in", path)
	}
	if h.version != headerVersion {
		return nil, kmerr.E(kmerr.Corruption, "unsupported FHT version in", path)
	}
	return h, nil
}
