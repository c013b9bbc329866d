package metastore

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/zstd"

	"github.com/grailbio/kmersearch/kmerr"
)

// FileStore is a disk-backed Store, persisting the three section 6.3
// collections as plain files under one directory instead of MemStore's
// process-lifetime maps. It follows pam/pamutil's convention of routing
// every file operation through github.com/grailbio/base/file rather than
// raw os calls, so the same Store implementation works unmodified against
// any backend file.Open/file.Create supports (local disk, S3, ...).
//
// FileStore serializes all of its own operations behind one mutex: unlike
// pam's sharded-by-block-range layout, this module's persisted state is
// small (one fingerprint, one high-frequency set, and a handful of index
// records per column), so a single lock is simpler and the mutex is never
// held across an I/O call's retry loop.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, kmerr.E(kmerr.ResourceExhausted, "creating metastore directory", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// sanitize maps a table/column label to a filesystem-safe path component.
// Table and column names are host-controlled identifiers, not attacker
// input, so this only needs to dodge path separators, not full escaping.
func sanitize(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "__").Replace(s)
}

func (s *FileStore) fingerprintPath(tc TableColumn) string {
	return filepath.Join(s.dir, sanitize(tc.Table)+"."+sanitize(tc.Column)+".fp")
}

func (s *FileStore) highFreqPath(tc TableColumn) string {
	return filepath.Join(s.dir, sanitize(tc.Table)+"."+sanitize(tc.Column)+".hf.zst")
}

func (s *FileStore) indexMetaPath() string {
	return filepath.Join(s.dir, "index_meta.records")
}

func (s *FileStore) GetFingerprint(tc TableColumn) (Fingerprint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()
	path := s.fingerprintPath(tc)
	if _, err := file.Stat(ctx, path); err != nil {
		return Fingerprint{}, false, nil
	}
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return Fingerprint{}, false, err
	}
	fp, err := unmarshalFingerprint(data)
	if err != nil {
		return Fingerprint{}, false, err
	}
	return fp, true, nil
}

// CommitAnalysis writes the high-frequency set before the fingerprint
// record, so a crash mid-write leaves GetFingerprint reporting "no
// analysis committed" rather than a fingerprint pointing at a truncated
// set — the same "never partially visible" contract CommitAnalysis
// documents, implemented here as "write the dependent file first".
func (s *FileStore) CommitAnalysis(tc TableColumn, fp Fingerprint, highFreqKmers []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()

	out, err := file.Create(ctx, s.highFreqPath(tc))
	if err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "creating high-frequency dump", err)
	}
	zw, err := zstd.NewWriter(out.Writer(ctx))
	if err != nil {
		file.CloseAndReport(ctx, out, &err)
		return kmerr.E(kmerr.ResourceExhausted, "opening zstd writer", err)
	}
	var word [8]byte
	for _, k := range highFreqKmers {
		binary.LittleEndian.PutUint64(word[:], k)
		if _, err := zw.Write(word[:]); err != nil {
			zw.Close()
			file.CloseAndReport(ctx, out, &err)
			return kmerr.E(kmerr.ResourceExhausted, "writing high-frequency dump", err)
		}
	}
	if err := zw.Close(); err != nil {
		file.CloseAndReport(ctx, out, &err)
		return kmerr.E(kmerr.ResourceExhausted, "flushing high-frequency dump", err)
	}
	if err := out.Close(ctx); err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "closing high-frequency dump", err)
	}

	fpOut, err := file.Create(ctx, s.fingerprintPath(tc))
	if err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "creating fingerprint record", err)
	}
	if _, err := fpOut.Writer(ctx).Write(marshalFingerprint(fp)); err != nil {
		file.CloseAndReport(ctx, fpOut, &err)
		return kmerr.E(kmerr.ResourceExhausted, "writing fingerprint record", err)
	}
	return fpOut.Close(ctx)
}

// UndoAnalysis removes both persisted files for (table,column). Removing
// the fingerprint record first means a crash mid-undo still leaves
// GetFingerprint reporting "no analysis committed", the same invariant
// CommitAnalysis's write order protects.
func (s *FileStore) UndoAnalysis(tc TableColumn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()
	if err := file.Remove(ctx, s.fingerprintPath(tc)); err != nil && !isNotExist(err) {
		return err
	}
	if err := file.Remove(ctx, s.highFreqPath(tc)); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// isNotExist reports whether err is grailbio/base/file's "no such file"
// error, the errors.Error{Kind: errors.NotExist} shape
// encoding/pam/fieldio.Reader checks rather than os.IsNotExist, since
// file.* wraps the underlying backend error instead of returning it raw.
func isNotExist(err error) bool {
	e, ok := err.(*errors.Error)
	return ok && e.Kind == errors.NotExist
}

// StreamHighFreq decompresses the persisted set and calls fn with
// successive batches of at most batchSize k-mer integers. err is a named
// return so the deferred file.CloseAndReport actually reaches the caller
// on the close-after-success path, the same shape pamutil.ReadShardIndex
// relies on.
func (s *FileStore) StreamHighFreq(tc TableColumn, batchSize int, fn func(batch []uint64) error) (err error) {
	s.mu.Lock()
	path := s.highFreqPath(tc)
	s.mu.Unlock()
	ctx := context.Background()

	in, err := file.Open(ctx, path)
	if err != nil {
		return kmerr.E(kmerr.MissingMetadata, "no high-frequency dump for", tc.Table, tc.Column, err)
	}
	defer file.CloseAndReport(ctx, in, &err)

	zr, zerr := zstd.NewReader(in.Reader(ctx))
	if zerr != nil {
		return kmerr.E(kmerr.ResourceExhausted, "opening zstd reader", zerr)
	}
	defer zr.Close()

	batch := make([]uint64, 0, batchSize)
	var word [8]byte
	for {
		if _, rerr := io.ReadFull(zr, word[:]); rerr != nil {
			break
		}
		batch = append(batch, binary.LittleEndian.Uint64(word[:]))
		if len(batch) == batchSize {
			if ferr := fn(batch); ferr != nil {
				return ferr
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

func (s *FileStore) PutIndexMeta(m IndexMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metas, err := s.loadIndexMetaLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range metas {
		if existing.IndexID == m.IndexID {
			metas[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		metas = append(metas, m)
	}
	return s.saveIndexMetaLocked(metas)
}

func (s *FileStore) DropIndexMeta(indexID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metas, err := s.loadIndexMetaLocked()
	if err != nil {
		return err
	}
	kept := metas[:0]
	for _, m := range metas {
		if m.IndexID != indexID {
			kept = append(kept, m)
		}
	}
	return s.saveIndexMetaLocked(kept)
}

func (s *FileStore) ListIndexMeta(tc TableColumn) ([]IndexMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metas, err := s.loadIndexMetaLocked()
	if err != nil {
		return nil, err
	}
	var out []IndexMeta
	for _, m := range metas {
		if m.Table == tc.Table && m.Column == tc.Column {
			out = append(out, m)
		}
	}
	return out, nil
}

// loadIndexMetaLocked reads and decodes every concatenated index-meta
// record. Rewriting the whole file on every Put/Drop (rather than
// appending and compacting later) keeps this store's on-disk format
// trivial to reason about; the collection is expected to hold at most a
// few hundred records per host.
func (s *FileStore) loadIndexMetaLocked() ([]IndexMeta, error) {
	ctx := context.Background()
	path := s.indexMetaPath()
	if _, err := file.Stat(ctx, path); err != nil {
		return nil, nil
	}
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	var metas []IndexMeta
	for len(data) > 0 {
		m, consumed, err := unmarshalIndexMeta(data)
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
		data = data[consumed:]
	}
	return metas, nil
}

func (s *FileStore) saveIndexMetaLocked(metas []IndexMeta) error {
	ctx := context.Background()
	out, err := file.Create(ctx, s.indexMetaPath())
	if err != nil {
		return kmerr.E(kmerr.ResourceExhausted, "creating index meta records", err)
	}
	w := out.Writer(ctx)
	for _, m := range metas {
		if _, err := w.Write(marshalIndexMeta(m)); err != nil {
			file.CloseAndReport(ctx, out, &err)
			return kmerr.E(kmerr.ResourceExhausted, "writing index meta records", err)
		}
	}
	return out.Close(ctx)
}
