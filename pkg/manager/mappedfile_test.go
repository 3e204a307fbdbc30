package manager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commyio/commy/pkg/errs"
)

func TestMappedFileCreateWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mmap")

	mf, err := CreateMappedFile(path, 4096)
	require.NoError(t, err)
	defer mf.Close()

	assert.True(t, mf.CreatedByUs())
	assert.EqualValues(t, 4096, mf.Size())

	data := []byte("hello, commy")
	require.NoError(t, mf.WriteAt(10, data))

	got, err := mf.ReadAt(10, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMappedFileWriteOutOfBounds(t *testing.T) {
	dir := t.TempDir()
	mf, err := CreateMappedFile(filepath.Join(dir, "a.mmap"), 16)
	require.NoError(t, err)
	defer mf.Close()

	err = mf.WriteAt(10, []byte("too long for this"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvalidOperation))
}

func TestMappedFileOpenMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenMappedFile(filepath.Join(dir, "missing.mmap"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindFileNotFound))
}

func TestMappedFileResizeRequiresCreatedByUs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mmap")

	created, err := CreateMappedFile(path, 4096)
	require.NoError(t, err)
	require.NoError(t, created.Close())

	opened, err := OpenMappedFile(path)
	require.NoError(t, err)
	defer opened.Close()

	err = opened.Resize(8192)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindPermissionDenied))
}

func TestMappedFileResizeZeroFillsExtension(t *testing.T) {
	dir := t.TempDir()
	mf, err := CreateMappedFile(filepath.Join(dir, "a.mmap"), 16)
	require.NoError(t, err)
	defer mf.Close()

	require.NoError(t, mf.WriteAt(0, []byte("0123456789ABCDEF")))
	require.NoError(t, mf.Resize(32))
	assert.EqualValues(t, 32, mf.Size())

	tail, err := mf.ReadAt(16, 16)
	require.NoError(t, err)
	for _, b := range tail {
		assert.Zero(t, b)
	}
}

func TestMappedFileFlushUpdatesOSSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mmap")
	mf, err := CreateMappedFile(path, 64)
	require.NoError(t, err)
	defer mf.Close()

	require.NoError(t, mf.Flush())

	stats, err := mf.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, mf.Size(), stats.Size)
}
