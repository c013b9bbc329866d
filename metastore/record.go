package metastore

import (
	"bytes"
	"fmt"
	"math"

	gogoproto "github.com/gogo/protobuf/proto"

	"github.com/grailbio/kmersearch/kmerconfig"
)

// fingerprintRecordMagic and indexMetaRecordMagic tag the two persisted
// metadata record kinds written by FileStore, the same "magic number
// first" convention fht's own on-disk header uses.
const (
	fingerprintRecordMagic = 0x4b465052 // "KFPR"
	indexMetaRecordMagic   = 0x4b494452 // "KIDR"
)

// marshalFingerprint encodes fp as a sequence of varints. There is no
// wire-format generator in this pack (the retrieved biopb package is only
// the hand-maintained Coord helpers, not a .proto-generated struct), so
// this hand-rolls the field order directly but leans on gogo/protobuf's
// varint codec instead of reimplementing one, the same division of labor
// biopb's era of hand-maintained .pb.go files made between "the wire
// primitives" and "the field list".
func marshalFingerprint(fp Fingerprint) []byte {
	var buf bytes.Buffer
	buf.Write(gogoproto.EncodeVarint(fingerprintRecordMagic))
	buf.Write(gogoproto.EncodeVarint(uint64(fp.KmerSize)))
	buf.Write(gogoproto.EncodeVarint(uint64(fp.OccurBits)))
	buf.Write(gogoproto.EncodeVarint(math.Float64bits(fp.MaxAppearanceRate)))
	buf.Write(gogoproto.EncodeVarint(uint64(fp.MaxAppearanceNrow)))
	buf.Write(gogoproto.EncodeVarint(uint64(fp.Timestamp)))
	return buf.Bytes()
}

// unmarshalFingerprint decodes a record written by marshalFingerprint.
func unmarshalFingerprint(data []byte) (Fingerprint, error) {
	var d varintDecoder
	magic := d.next(data)
	if magic != fingerprintRecordMagic {
		return Fingerprint{}, fmt.Errorf("metastore: bad fingerprint record magic %#x", magic)
	}
	kmerSize := d.next(data)
	occurBits := d.next(data)
	rateBits := d.next(data)
	maxNrow := d.next(data)
	timestamp := d.next(data)
	if d.err != nil {
		return Fingerprint{}, d.err
	}
	return Fingerprint{
		Fingerprint: kmerconfig.Fingerprint{
			KmerSize:          int(kmerSize),
			OccurBits:         int(occurBits),
			MaxAppearanceRate: math.Float64frombits(rateBits),
			MaxAppearanceNrow: int(maxNrow),
		},
		Timestamp: int64(timestamp),
	}, nil
}

// marshalIndexMeta encodes m the same way marshalFingerprint does,
// length-prefixing the two variable-length strings it carries so
// multiple records can be concatenated in one file.
func marshalIndexMeta(m IndexMeta) []byte {
	var buf bytes.Buffer
	buf.Write(gogoproto.EncodeVarint(indexMetaRecordMagic))
	writeVarintString(&buf, m.IndexID)
	writeVarintString(&buf, m.Table)
	writeVarintString(&buf, m.Column)
	buf.Write(gogoproto.EncodeVarint(uint64(m.Fingerprint.KmerSize)))
	buf.Write(gogoproto.EncodeVarint(uint64(m.Fingerprint.OccurBits)))
	buf.Write(gogoproto.EncodeVarint(math.Float64bits(m.Fingerprint.MaxAppearanceRate)))
	buf.Write(gogoproto.EncodeVarint(uint64(m.Fingerprint.MaxAppearanceNrow)))
	buf.Write(gogoproto.EncodeVarint(boolToVarint(m.PrecludeHighfreqKmer)))
	buf.Write(gogoproto.EncodeVarint(uint64(m.CreatedAt)))
	return buf.Bytes()
}

// unmarshalIndexMeta decodes a record written by marshalIndexMeta,
// reporting how many bytes of data it consumed so the caller can advance
// past it in a concatenated record stream.
func unmarshalIndexMeta(data []byte) (IndexMeta, int, error) {
	var d varintDecoder
	magic := d.next(data)
	if magic != indexMetaRecordMagic {
		return IndexMeta{}, 0, fmt.Errorf("metastore: bad index meta record magic %#x", magic)
	}
	indexID := d.nextString(data)
	table := d.nextString(data)
	column := d.nextString(data)
	kmerSize := d.next(data)
	occurBits := d.next(data)
	rateBits := d.next(data)
	maxNrow := d.next(data)
	preclude := d.next(data)
	createdAt := d.next(data)
	if d.err != nil {
		return IndexMeta{}, 0, d.err
	}
	m := IndexMeta{
		IndexID: indexID,
		Table:   table,
		Column:  column,
		Fingerprint: kmerconfig.Fingerprint{
			KmerSize:          int(kmerSize),
			OccurBits:         int(occurBits),
			MaxAppearanceRate: math.Float64frombits(rateBits),
			MaxAppearanceNrow: int(maxNrow),
		},
		PrecludeHighfreqKmer: preclude != 0,
		CreatedAt:            int64(createdAt),
	}
	return m, d.offset, nil
}

func writeVarintString(buf *bytes.Buffer, s string) {
	buf.Write(gogoproto.EncodeVarint(uint64(len(s))))
	buf.WriteString(s)
}

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// varintDecoder walks a byte slice one gogo/protobuf-encoded varint (or
// length-prefixed string) at a time, latching the first decode error so
// callers can check it once at the end instead of after every field.
type varintDecoder struct {
	offset int
	err    error
}

func (d *varintDecoder) next(data []byte) uint64 {
	if d.err != nil {
		return 0
	}
	if d.offset >= len(data) {
		d.err = fmt.Errorf("metastore: truncated record")
		return 0
	}
	v, n := gogoproto.DecodeVarint(data[d.offset:])
	if n == 0 {
		d.err = fmt.Errorf("metastore: malformed varint at offset %d", d.offset)
		return 0
	}
	d.offset += n
	return v
}

func (d *varintDecoder) nextString(data []byte) string {
	n := d.next(data)
	if d.err != nil {
		return ""
	}
	end := d.offset + int(n)
	if end > len(data) {
		d.err = fmt.Errorf("metastore: truncated string field")
		return ""
	}
	s := string(data[d.offset:end])
	d.offset = end
	return s
}
