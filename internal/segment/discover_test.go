package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
}

func TestDiscoverOrdersByCounter(t *testing.T) {
	dir := t.TempDir()

	// Created out of order so neither creation order nor mtime matches.
	for _, id := range []uint64{10, 2, 0x1f, 1} {
		touch(t, dir, FormatFileName(id))
	}

	segments, err := Discover(dir)
	require.NoError(t, err)

	ids := make([]uint64, 0, len(segments))
	for _, s := range segments {
		ids = append(ids, s.ID)
		assert.Equal(t, filepath.Join(dir, FormatFileName(s.ID)), s.Path)
	}
	assert.Equal(t, []uint64{1, 2, 10, 0x1f}, ids)
}

func TestDiscoverEmptyDirectory(t *testing.T) {
	segments, err := Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestDiscoverForeignFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, FormatFileName(0))
	touch(t, dir, "notes.txt")

	_, err := Discover(dir)
	require.Error(t, err)
	assert.True(t, IsForeignFile(err))

	var foreign *ForeignFileError
	require.ErrorAs(t, err, &foreign)
	assert.Equal(t, "notes.txt", foreign.Name)
}

func TestDiscoverForeignDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, FormatFileName(3)), 0755))

	_, err := Discover(dir)
	assert.True(t, IsForeignFile(err))
}

func TestDiscoverSkipsReservedNames(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "LOCK")
	touch(t, dir, FormatFileName(4))

	segments, err := Discover(dir, "LOCK")
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, uint64(4), segments[0].ID)
}

func TestDiscoverMissingDirectory(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, IsForeignFile(err))
}
