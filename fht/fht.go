package fht

import (
	"encoding/binary"
	"math/bits"
	"os"

	"github.com/grailbio/kmersearch/kmerr"
)

// minBucketCount and maxBucketCount clamp BucketCountFor's result, per
// spec.md section 4.4.
const (
	minBucketCount = 4096
	maxBucketCount = 16777216
)

// nextExp2 returns the next power of two strictly greater than x, the same
// bit-trick the teacher's circular sliding-window buffers use to pick a
// capacity; BucketCountFor is the only caller this module has for it, so it
// lives here instead of its own package.
func nextExp2(x int) int {
	log2 := 63 - bits.LeadingZeros64(uint64(x))
	return 2 << uint32(log2)
}

// BucketCountFor returns the smallest power of two at least
// expectedEntries/4, clamped to [4096, 16777216].
func BucketCountFor(expectedEntries uint64) uint64 {
	target := expectedEntries / 4
	if target > maxBucketCount {
		target = maxBucketCount
	}
	count := uint64(1)
	if target > 1 {
		count = uint64(nextExp2(int(target - 1)))
	}
	if count < minBucketCount {
		count = minBucketCount
	}
	if count > maxBucketCount {
		count = maxBucketCount
	}
	return count
}

// fmix64 is MurmurHash3's 64-bit finalization mix, used to spread a raw
// k-mer integer across bucket indices (spec.md section 4.4: "32- and
// 64-bit variants use the MurmurHash3 finalization mix on the key").
func fmix64(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

// MixHash exposes fmix64 for other packages that need the same bucket
// placement hash over a k-mer integer (highfreqcache's shared table uses
// it so both C4 and C7 place keys identically instead of carrying a
// second hash function for the same kind of key).
func MixHash(k uint64) uint64 {
	return fmix64(k)
}

// entrySize returns the on-disk size of one chain entry for a variant:
// key width in bytes + 8-byte value + 8-byte next-offset.
func entrySize(v Variant) int64 {
	switch v {
	case FHT32:
		return 4 + 8 + 8
	case FHT64:
		return 8 + 8 + 8
	default:
		panic(v)
	}
}

// directoryOffset and directorySize describe the bucket-offset array that
// immediately follows the header in FHT32/FHT64 files.
func directoryOffset() int64 { return headerSize }
func directorySize(bucketCount uint64) int64 { return int64(bucketCount) * 8 }

func entriesStart(bucketCount uint64) int64 {
	return directoryOffset() + directorySize(bucketCount)
}

// fht16ArrayOffset is where FHT16's direct 2^16-entry uint64 counter array
// begins.
const fht16ArrayOffset = headerSize
const fht16EntryCount = 1 << 16

// Table is an open file-backed hash table (spec.md section 4.4). The zero
// value is not usable; construct with Create or Open.
type Table struct {
	f       *os.File
	path    string
	variant Variant
	hdr     *header
}

// Create makes a new empty table of the given variant at path, sized for
// expectedEntries (used only by FHT32/FHT64 to size the bucket directory).
func Create(path string, variant Variant, expectedEntries uint64) (*Table, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, kmerr.E(kmerr.ResourceExhausted, "creating FHT file", path, err)
	}
	t := &Table{f: f, path: path, variant: variant}
	switch variant {
	case FHT16:
		t.hdr = &header{magic: magic, version: headerVersion, variant: variant}
		if err := f.Truncate(fht16ArrayOffset + fht16EntryCount*8); err != nil {
			f.Close()
			return nil, kmerr.E(kmerr.ResourceExhausted, "sizing FHT16 file", path, err)
		}
	case FHT32, FHT64:
		bucketCount := BucketCountFor(expectedEntries)
		t.hdr = &header{magic: magic, version: headerVersion, variant: variant, bucketCount: bucketCount, nextAppend: uint64(entriesStart(bucketCount))}
		if err := f.Truncate(entriesStart(bucketCount)); err != nil {
			f.Close()
			return nil, kmerr.E(kmerr.ResourceExhausted, "sizing FHT file", path, err)
		}
	default:
		f.Close()
		return nil, kmerr.E(kmerr.InvalidInput, "unknown FHT variant")
	}
	if err := t.hdr.write(f); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// Open opens an existing table, validating its magic and version.
func Open(path string) (*Table, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, kmerr.E(kmerr.ResourceExhausted, "opening FHT file", path, err)
	}
	hdr, err := readHeader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Table{f: f, path: path, variant: hdr.variant, hdr: hdr}, nil
}

// Close flushes the header (syncing entry count and next-append offset)
// and closes the underlying file, per spec.md section 4.4: "on close the
// header is flushed."
func (t *Table) Close() error {
	if err := t.hdr.write(t.f); err != nil {
		t.f.Close()
		return err
	}
	if err := t.f.Close(); err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "closing FHT file", t.path, err)
	}
	return nil
}

// Variant reports which on-disk layout t uses.
func (t *Table) Variant() Variant { return t.variant }

// Path reports the file path t was opened or created from.
func (t *Table) Path() string { return t.path }

func (t *Table) bucketIndex(key uint64) uint64 {
	return fmix64(key) & (t.hdr.bucketCount - 1)
}

// Get returns the counter value for key, or 0 if key has never been added.
func (t *Table) Get(key uint64) (uint64, error) {
	if t.variant == FHT16 {
		return t.get16(key)
	}
	return t.getChained(key)
}

func (t *Table) get16(key uint64) (uint64, error) {
	if key >= fht16EntryCount {
		return 0, kmerr.E(kmerr.InvalidInput, "FHT16 key out of range")
	}
	buf := make([]byte, 8)
	if _, err := t.f.ReadAt(buf, fht16ArrayOffset+int64(key)*8); err != nil {
		return 0, kmerr.E(kmerr.ResourceExhausted, "reading FHT16 entry", t.path, err)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (t *Table) getChained(key uint64) (uint64, error) {
	offset, err := t.bucketHead(t.bucketIndex(key))
	if err != nil {
		return 0, err
	}
	for offset != 0 {
		k, v, next, err := t.readEntry(offset)
		if err != nil {
			return 0, err
		}
		if k == key {
			return v, nil
		}
		offset = next
	}
	return 0, nil
}

func (t *Table) bucketHead(idx uint64) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := t.f.ReadAt(buf, directoryOffset()+int64(idx)*8); err != nil {
		return 0, kmerr.E(kmerr.ResourceExhausted, "reading FHT bucket directory", t.path, err)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (t *Table) setBucketHead(idx, offset uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, offset)
	if _, err := t.f.WriteAt(buf, directoryOffset()+int64(idx)*8); err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "writing FHT bucket directory", t.path, err)
	}
	return nil
}

// readEntry reads the (key,value,next) triple at offset.
func (t *Table) readEntry(offset uint64) (key, value, next uint64, err error) {
	size := entrySize(t.variant)
	buf := make([]byte, size)
	if _, rerr := t.f.ReadAt(buf, int64(offset)); rerr != nil {
		return 0, 0, 0, kmerr.E(kmerr.ResourceExhausted, "reading FHT entry", t.path, rerr)
	}
	var keyWidth int
	switch t.variant {
	case FHT32:
		key = uint64(binary.LittleEndian.Uint32(buf[0:4]))
		keyWidth = 4
	case FHT64:
		key = binary.LittleEndian.Uint64(buf[0:8])
		keyWidth = 8
	}
	value = binary.LittleEndian.Uint64(buf[keyWidth : keyWidth+8])
	next = binary.LittleEndian.Uint64(buf[keyWidth+8 : keyWidth+16])
	return key, value, next, nil
}

// appendEntry appends a new (key,value,next) entry at the table's current
// next-append offset, returning that offset, and advances it.
func (t *Table) appendEntry(key, value, next uint64) (uint64, error) {
	size := entrySize(t.variant)
	buf := make([]byte, size)
	var keyWidth int
	switch t.variant {
	case FHT32:
		binary.LittleEndian.PutUint32(buf[0:4], uint32(key))
		keyWidth = 4
	case FHT64:
		binary.LittleEndian.PutUint64(buf[0:8], key)
		keyWidth = 8
	}
	binary.LittleEndian.PutUint64(buf[keyWidth:keyWidth+8], value)
	binary.LittleEndian.PutUint64(buf[keyWidth+8:keyWidth+16], next)

	offset := t.hdr.nextAppend
	if _, err := t.f.WriteAt(buf, int64(offset)); err != nil {
		return 0, kmerr.E(kmerr.ResourceExhausted, "appending FHT entry", t.path, err)
	}
	t.hdr.nextAppend += uint64(size)
	return offset, nil
}

// writeEntryValue overwrites only the value field of the entry at offset,
// used by add's increment-if-present path.
func (t *Table) writeEntryValue(offset uint64, value uint64) error {
	var keyWidth int64
	switch t.variant {
	case FHT32:
		keyWidth = 4
	case FHT64:
		keyWidth = 8
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	if _, err := t.f.WriteAt(buf, int64(offset)+keyWidth); err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "updating FHT entry", t.path, err)
	}
	return nil
}

// Add increments key's counter by delta, creating a new entry if key is
// absent ("read-chain, increment-if-present, append-new-if-absent",
// spec.md section 4.4).
func (t *Table) Add(key, delta uint64) error {
	if t.variant == FHT16 {
		return t.add16(key, delta)
	}
	return t.addChained(key, delta)
}

func (t *Table) add16(key, delta uint64) error {
	if key >= fht16EntryCount {
		return kmerr.E(kmerr.InvalidInput, "FHT16 key out of range")
	}
	cur, err := t.get16(key)
	if err != nil {
		return err
	}
	wasZero := cur == 0
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, cur+delta)
	if _, err := t.f.WriteAt(buf, fht16ArrayOffset+int64(key)*8); err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "writing FHT16 entry", t.path, err)
	}
	if wasZero {
		t.hdr.entryCount++
	}
	return nil
}

func (t *Table) addChained(key, delta uint64) error {
	idx := t.bucketIndex(key)
	head, err := t.bucketHead(idx)
	if err != nil {
		return err
	}
	offset := head
	for offset != 0 {
		k, v, next, err := t.readEntry(offset)
		if err != nil {
			return err
		}
		if k == key {
			return t.writeEntryValue(offset, v+delta)
		}
		offset = next
	}
	newOffset, err := t.appendEntry(key, delta, head)
	if err != nil {
		return err
	}
	if err := t.setBucketHead(idx, newOffset); err != nil {
		return err
	}
	t.hdr.entryCount++
	return nil
}

// EntryCount reports the number of distinct keys currently stored.
func (t *Table) EntryCount() uint64 { return t.hdr.entryCount }

// BucketCount reports the bucket directory size (0 for FHT16, which has no
// bucket directory).
func (t *Table) BucketCount() uint64 { return t.hdr.bucketCount }

// Iterate walks every (key,value) pair in t, in no particular order,
// calling fn for each; it stops early if fn returns false.
func (t *Table) Iterate(fn func(key, value uint64) bool) error {
	if t.variant == FHT16 {
		for key := uint64(0); key < fht16EntryCount; key++ {
			v, err := t.get16(key)
			if err != nil {
				return err
			}
			if v == 0 {
				continue
			}
			if !fn(key, v) {
				return nil
			}
		}
		return nil
	}
	for idx := uint64(0); idx < t.hdr.bucketCount; idx++ {
		offset, err := t.bucketHead(idx)
		if err != nil {
			return err
		}
		for offset != 0 {
			k, v, next, err := t.readEntry(offset)
			if err != nil {
				return err
			}
			if !fn(k, v) {
				return nil
			}
			offset = next
		}
	}
	return nil
}

// BulkAdd merges an in-memory batch into t, the §4.4 bulk_add operation.
// For FHT16 each batch entry is added in place. For the other variants it
// rebuilds the file by merging all existing file entries with batch via a
// sized merge hash, truncating the old file and writing a new one with the
// same bucket count.
func (t *Table) BulkAdd(batch map[uint64]uint64) error {
	if t.variant == FHT16 {
		for k, delta := range batch {
			if err := t.add16(k, delta); err != nil {
				return err
			}
		}
		return nil
	}
	merged := make(map[uint64]uint64, int(t.hdr.entryCount)+len(batch))
	if err := t.Iterate(func(k, v uint64) bool {
		merged[k] = v
		return true
	}); err != nil {
		return err
	}
	for k, delta := range batch {
		merged[k] += delta
	}
	return t.rebuild(merged)
}

// rebuild truncates t's file and repopulates it from scratch with entries,
// keeping the same bucket count and variant.
func (t *Table) rebuild(entries map[uint64]uint64) error {
	bucketCount := t.hdr.bucketCount
	if err := t.f.Truncate(entriesStart(bucketCount)); err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "truncating FHT file for rebuild", t.path, err)
	}
	// Clear the bucket directory (all-zero offsets mean empty chains).
	zero := make([]byte, directorySize(bucketCount))
	if _, err := t.f.WriteAt(zero, directoryOffset()); err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "clearing FHT bucket directory", t.path, err)
	}
	t.hdr.nextAppend = uint64(entriesStart(bucketCount))
	t.hdr.entryCount = 0
	for k, v := range entries {
		if v == 0 {
			continue
		}
		if err := t.addChained(k, v); err != nil {
			return err
		}
	}
	return t.hdr.write(t.f)
}

// Merge absorbs src into dst in place: for every key in src, dst's counter
// is incremented by src's (spec.md section 4.3 step 4 and property 5,
// "FHT idempotence under merge"). src is left open; the caller is
// responsible for closing and deleting it afterward, matching the
// analyzer's "merge reads source, adds to target, deletes source" step.
func Merge(dst, src *Table) error {
	var mergeErr error
	if err := src.Iterate(func(k, v uint64) bool {
		if err := dst.Add(k, v); err != nil {
			mergeErr = err
			return false
		}
		return true
	}); err != nil {
		return err
	}
	return mergeErr
}
