package highfreqcache

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/minio/highwayhash"
	"golang.org/x/sys/unix"

	"github.com/grailbio/kmersearch/fht"
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/kmerr"
	"github.com/grailbio/kmersearch/metastore"
)

// sharedMagic identifies a shared high-frequency segment file, the same
// role fht's header magic plays for FHT files.
const sharedMagic = 0x4b534843 // "KSHC"

// sharedHeaderSize is the fixed prefix before the bucket array: magic and
// refCount packed together into the first 8 bytes (two uint32 words), then
// kmerSize, occurBits, maxAppearanceRate, maxAppearanceNrow and
// bucketCount as 8-byte fields. That is six 8-byte words; the seventh
// (bytes 48-56) is unused padding.
const sharedHeaderSize = 7 * 8

// emptySlot marks an unoccupied bucket. Collides only with the single
// k-mer integer whose bits are all 1 (k=32, every base T on DNA2); this
// reference implementation accepts that one-in-2^64 caveat rather than
// spend a separate presence bitmap on a shared, atomically-shared layout.
const emptySlot = ^uint64(0)

// highwayKey is a fixed all-zero key: the cache only needs the digest to
// be a stable function of the fingerprint bytes, not a keyed MAC, so a
// zero key is deliberate rather than a missing secret.
var highwayKey = make([]byte, 32)

var segmentDir = filepath.Join(os.TempDir(), "kmersearch-shared")

// segmentPath derives the shared-memory segment's backing file path from
// the table/column and configuration fingerprint, via highwayhash the way
// SPEC_FULL's dependency table calls for: the segment name is a content
// hash of the fingerprint, so two engines with divergent configuration
// for the same column never collide on one segment.
func segmentPath(tc metastore.TableColumn, fp kmerconfig.Fingerprint) string {
	b := make([]byte, 0, 64)
	b = append(b, tc.Table...)
	b = append(b, 0)
	b = append(b, tc.Column...)
	b = append(b, 0)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(fp.KmerSize))
	b = append(b, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(fp.OccurBits))
	b = append(b, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(fp.MaxAppearanceRate))
	b = append(b, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(fp.MaxAppearanceNrow))
	b = append(b, tmp[:]...)
	sum := highwayhash.Sum64(b, highwayKey)
	return filepath.Join(segmentDir, fmt.Sprintf("%016x.seg", sum))
}

// SharedCache is the inter-process implementation of spec.md section
// 4.7's shared cache: a fixed-size open-addressing hash table of
// kmer-integer to count, mapped MAP_SHARED from a backing file under
// segmentDir so unrelated processes can attach to the same table, the
// same syscalls fusion/kmer_index.go uses for its own mmap'd table
// (golang.org/x/sys/unix.Mmap/Munmap/Madvise), minus the hugepage advice
// since this table is tiny compared to the gene index.
type SharedCache struct {
	path        string
	tc          metastore.TableColumn
	data        []byte
	fingerprint kmerconfig.Fingerprint
	bucketCount uint64
	owner       bool // true if this process created the segment (read-write)
}

var (
	sharedMu       sync.Mutex
	sharedSegments = make(map[string]*SharedCache)
)

func loadShared(tc metastore.TableColumn, fp kmerconfig.Fingerprint, store metastore.Store) (*SharedCache, error) {
	path := segmentPath(tc, fp)

	sharedMu.Lock()
	if existing, ok := sharedSegments[path]; ok {
		sharedMu.Unlock()
		return existing, nil
	}
	sharedMu.Unlock()

	if err := os.MkdirAll(segmentDir, 0755); err != nil {
		return nil, kmerr.E(kmerr.ResourceExhausted, "cannot create shared cache directory:", err.Error())
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	owner := err == nil
	if err != nil {
		if !os.IsExist(err) {
			return nil, kmerr.E(kmerr.ResourceExhausted, "cannot create shared cache segment:", err.Error())
		}
		f, err = os.OpenFile(path, os.O_RDWR, 0644)
		if err != nil {
			return nil, kmerr.E(kmerr.ResourceExhausted, "cannot open shared cache segment:", err.Error())
		}
	}
	defer f.Close()

	var bucketCount uint64
	if owner {
		// Count the persisted high-frequency set once to size the table,
		// the same load-factor-aware sizing fht.BucketCountFor already
		// implements for the on-disk hash table.
		var n uint64
		if err := store.StreamHighFreq(tc, DefaultStreamBatch, func(batch []uint64) error {
			n += uint64(len(batch))
			return nil
		}); err != nil {
			os.Remove(path)
			return nil, err
		}
		bucketCount = fht.BucketCountFor(n)
		size := int64(sharedHeaderSize) + int64(bucketCount)*16
		if err := f.Truncate(size); err != nil {
			os.Remove(path)
			return nil, kmerr.E(kmerr.ResourceExhausted, "cannot size shared cache segment:", err.Error())
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fileSize(f)), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if owner {
			os.Remove(path)
		}
		return nil, kmerr.E(kmerr.ResourceExhausted, "cannot map shared cache segment:", err.Error())
	}

	c := &SharedCache{path: path, tc: tc, data: data, fingerprint: fp, owner: owner}

	if owner {
		bucketCount = (uint64(len(data)) - sharedHeaderSize) / 16
		c.bucketCount = bucketCount
		for i := range data {
			data[i] = 0
		}
		for i := uint64(0); i < bucketCount; i++ {
			binary.LittleEndian.PutUint64(data[sharedHeaderSize+i*16:], emptySlot)
		}
		binary.LittleEndian.PutUint32(data[0:4], sharedMagic)
		atomic.StoreUint32(refCountPtr(data), 1)
		binary.LittleEndian.PutUint64(data[8:16], uint64(fp.KmerSize))
		binary.LittleEndian.PutUint64(data[16:24], uint64(fp.OccurBits))
		binary.LittleEndian.PutUint64(data[24:32], math.Float64bits(fp.MaxAppearanceRate))
		binary.LittleEndian.PutUint64(data[32:40], uint64(fp.MaxAppearanceNrow))
		binary.LittleEndian.PutUint64(data[40:48], bucketCount)

		if err := store.StreamHighFreq(tc, DefaultStreamBatch, func(batch []uint64) error {
			for _, k := range batch {
				c.insert(k, 1)
			}
			return nil
		}); err != nil {
			unix.Munmap(data)
			os.Remove(path)
			return nil, err
		}
	} else {
		if binary.LittleEndian.Uint32(data[0:4]) != sharedMagic {
			unix.Munmap(data)
			return nil, kmerr.E(kmerr.Corruption, "shared cache segment has bad magic:", path)
		}
		c.bucketCount = binary.LittleEndian.Uint64(data[40:48])
		storedFP := kmerconfig.Fingerprint{
			KmerSize:          int(binary.LittleEndian.Uint64(data[8:16])),
			OccurBits:         int(binary.LittleEndian.Uint64(data[16:24])),
			MaxAppearanceRate: math.Float64frombits(binary.LittleEndian.Uint64(data[24:32])),
			MaxAppearanceNrow: int(binary.LittleEndian.Uint64(data[32:40])),
		}
		if !storedFP.Matches(fp) {
			unix.Munmap(data)
			return nil, kmerr.E(kmerr.ConfigMismatch, "shared cache segment fingerprint is stale:", path)
		}
		atomic.AddUint32(refCountPtr(data), 1)
	}

	sharedMu.Lock()
	sharedSegments[path] = c
	sharedMu.Unlock()
	return c, nil
}

func refCountPtr(data []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&data[4]))
}

func fileSize(f *os.File) int64 {
	fi, err := f.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}

// bucketIndex reuses fht's MurmurHash3 finalizer for bucket selection, the
// same mix fht uses to place posting entries, since both are fixed-size
// open-addressed/chained tables over a uint64 key.
func (c *SharedCache) bucketIndex(key uint64, probe uint64) uint64 {
	return (fht.MixHash(key) + probe) % c.bucketCount
}

// insert writes key into the table with linear probing. Only the owning
// process calls this, while building the table before any other process
// attaches, so no synchronization beyond the plain memory writes is
// needed here.
func (c *SharedCache) insert(key uint64, count uint64) {
	if key == emptySlot {
		return
	}
	for probe := uint64(0); probe < c.bucketCount; probe++ {
		idx := c.bucketIndex(key, probe)
		off := sharedHeaderSize + idx*16
		existing := binary.LittleEndian.Uint64(c.data[off : off+8])
		if existing == emptySlot {
			binary.LittleEndian.PutUint64(c.data[off:off+8], key)
			binary.LittleEndian.PutUint64(c.data[off+8:off+16], count)
			return
		}
		if existing == key {
			cur := binary.LittleEndian.Uint64(c.data[off+8 : off+16])
			binary.LittleEndian.PutUint64(c.data[off+8:off+16], cur+count)
			return
		}
	}
}

// Contains reports whether kmerInt is present in the shared table.
func (c *SharedCache) Contains(kmerInt uint64) bool {
	for probe := uint64(0); probe < c.bucketCount; probe++ {
		idx := c.bucketIndex(kmerInt, probe)
		off := sharedHeaderSize + idx*16
		existing := binary.LittleEndian.Uint64(c.data[off : off+8])
		if existing == emptySlot {
			return false
		}
		if existing == kmerInt {
			return true
		}
	}
	return false
}

// Fingerprint returns the configuration this segment was built under.
func (c *SharedCache) Fingerprint() kmerconfig.Fingerprint {
	return c.fingerprint
}

// Close detaches from the segment. The last detacher (refCount reaches
// zero) unmaps and removes the backing file, per spec.md section 4.7's
// "process-exit cleanup callback ... the last detacher frees the
// segment." Processes are expected to call Close on exit or via a
// registered at-exit hook; this package does not register one itself,
// since the host process owns its own shutdown sequencing.
func (c *SharedCache) Close() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if c.data == nil {
		return nil
	}
	remaining := atomic.AddUint32(refCountPtr(c.data), ^uint32(0))
	data := c.data
	c.data = nil
	delete(sharedSegments, c.path)
	if remaining == 0 {
		os.Remove(c.path)
	}
	return unix.Munmap(data)
}

// invalidateShared drops every in-process attachment whose segment was
// built for (table,column), so a stale segment left behind by an undone
// analysis can't be attached to again by this process. Other processes
// still holding the segment open detect the staleness themselves on their
// next fingerprint check against metastore (spec.md section 4.7:
// "parallel workers that find the shared cache's fingerprint stale MUST
// refuse to proceed").
func invalidateShared(tc metastore.TableColumn) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	for path, c := range sharedSegments {
		if c.tc == tc {
			delete(sharedSegments, path)
			os.Remove(path)
			unix.Munmap(c.data)
			c.data = nil
		}
	}
}
