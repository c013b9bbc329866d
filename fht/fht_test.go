package fht

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFHT16AddGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.fht16")
	tbl, err := Create(path, FHT16, 100)
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Add(42, 3))
	require.NoError(t, tbl.Add(42, 2))
	v, err := tbl.Get(42)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)

	v, err = tbl.Get(7)
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)
	assert.EqualValues(t, 1, tbl.EntryCount())
}

func TestFHT32ChainedAddGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.fht32")
	tbl, err := Create(path, FHT32, 1000)
	require.NoError(t, err)
	defer tbl.Close()

	keys := []uint64{1, 2, 1000000, 0xdeadbeef, 17}
	for _, k := range keys {
		require.NoError(t, tbl.Add(k, 1))
		require.NoError(t, tbl.Add(k, 1))
	}
	for _, k := range keys {
		v, err := tbl.Get(k)
		require.NoError(t, err)
		assert.EqualValues(t, 2, v, "key %d", k)
	}
	assert.EqualValues(t, len(keys), tbl.EntryCount())
}

func TestFHT64CloseReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.fht64")
	tbl, err := Create(path, FHT64, 100)
	require.NoError(t, err)
	require.NoError(t, tbl.Add(123456789012345, 9))
	require.NoError(t, tbl.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get(123456789012345)
	require.NoError(t, err)
	assert.EqualValues(t, 9, v)
	assert.EqualValues(t, 1, reopened.EntryCount())
}

func TestOpenRejectsCorruptMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fht")
	tbl, err := Create(path, FHT32, 10)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	// Corrupt the magic bytes directly.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0, 0, 0, 0}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	require.Error(t, err)
}

func TestBulkAddMergesWithExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bulk.fht32")
	tbl, err := Create(path, FHT32, 10)
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Add(5, 1))
	require.NoError(t, tbl.BulkAdd(map[uint64]uint64{5: 4, 6: 7}))

	v5, err := tbl.Get(5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v5)
	v6, err := tbl.Get(6)
	require.NoError(t, err)
	assert.EqualValues(t, 7, v6)
}

// TestMergeIdempotence is property 5 of spec.md section 8.1: after merging
// B into A, A.get(x) == A_old.get(x) + B.get(x) for every k-mer x.
func TestMergeIdempotence(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(filepath.Join(dir, "a.fht32"), FHT32, 10)
	require.NoError(t, err)
	defer a.Close()
	b, err := Create(filepath.Join(dir, "b.fht32"), FHT32, 10)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Add(1, 3))
	require.NoError(t, a.Add(2, 1))
	require.NoError(t, b.Add(1, 5))
	require.NoError(t, b.Add(3, 2))

	require.NoError(t, Merge(a, b))

	v1, _ := a.Get(1)
	v2, _ := a.Get(2)
	v3, _ := a.Get(3)
	assert.EqualValues(t, 8, v1)
	assert.EqualValues(t, 1, v2)
	assert.EqualValues(t, 2, v3)
}

func TestIterateVisitsAllEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iter.fht32")
	tbl, err := Create(path, FHT32, 10)
	require.NoError(t, err)
	defer tbl.Close()

	want := map[uint64]uint64{1: 1, 2: 2, 3: 3}
	for k, v := range want {
		require.NoError(t, tbl.Add(k, v))
	}
	got := make(map[uint64]uint64)
	require.NoError(t, tbl.Iterate(func(k, v uint64) bool {
		got[k] = v
		return true
	}))
	assert.Equal(t, want, got)
}

func TestBucketCountForClamps(t *testing.T) {
	assert.EqualValues(t, minBucketCount, BucketCountFor(1))
	assert.EqualValues(t, maxBucketCount, BucketCountFor(1<<40))
	assert.EqualValues(t, 8192, BucketCountFor(32000))
}

func TestVariantFor(t *testing.T) {
	assert.Equal(t, FHT16, VariantFor(16))
	assert.Equal(t, FHT32, VariantFor(17))
	assert.Equal(t, FHT32, VariantFor(32))
	assert.Equal(t, FHT64, VariantFor(33))
}
