package segment

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aethne0/banana-cask/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestManager(t *testing.T, dir string, maxSize int64) *Manager {
	t.Helper()

	discovered, err := Discover(dir)
	require.NoError(t, err)

	m, err := OpenManager(dir, discovered, Options{MaxSegmentSize: maxSize, Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestOpenManagerCreatesFirstSegment(t *testing.T) {
	dir := t.TempDir()
	m := openTestManager(t, dir, 1024)

	assert.Equal(t, uint64(0), m.ActiveID())
	assert.Equal(t, int64(0), m.ActiveSize())

	_, err := os.Stat(filepath.Join(dir, FormatFileName(0)))
	assert.NoError(t, err, "segment 0 should be created")
}

func TestOpenManagerResumesHighestSegment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FormatFileName(3)), []byte("abc"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FormatFileName(7)), []byte("hello"), 0644))

	m := openTestManager(t, dir, 1024)
	assert.Equal(t, uint64(7), m.ActiveID())
	assert.Equal(t, int64(5), m.ActiveSize())

	offset, err := m.Append([]byte("!"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), offset)

	require.NoError(t, m.Rotate())
	assert.Equal(t, uint64(8), m.ActiveID(), "next counter is one past the highest")
}

func TestOpenManagerRejectsTinySegments(t *testing.T) {
	_, err := OpenManager(t.TempDir(), nil, Options{MaxSegmentSize: record.HeaderSize})
	assert.Error(t, err)
}

func TestAppendAndReadAt(t *testing.T) {
	m := openTestManager(t, t.TempDir(), 1024)

	off1, err := m.Append([]byte("hello"))
	require.NoError(t, err)
	off2, err := m.Append([]byte("world!"))
	require.NoError(t, err)

	assert.Equal(t, int64(0), off1)
	assert.Equal(t, int64(5), off2)
	assert.Equal(t, int64(11), m.ActiveSize())

	got, err := m.ReadAt(m.ActiveID(), off2, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("world!"), got)

	_, err = m.ReadAt(m.ActiveID(), off2, 7)
	assert.ErrorIs(t, err, record.ErrTruncatedRecord)
}

func TestMaybeRotate(t *testing.T) {
	var rotations [][2]uint64
	dir := t.TempDir()
	m, err := OpenManager(dir, nil, Options{
		MaxSegmentSize: 100,
		Logger:         testLogger(),
		OnRotate: func(oldID, newID uint64) {
			rotations = append(rotations, [2]uint64{oldID, newID})
		},
	})
	require.NoError(t, err)
	defer m.Close()

	rotated, err := m.MaybeRotate(100)
	require.NoError(t, err)
	assert.False(t, rotated, "an exactly fitting write does not rotate")

	_, err = m.Append(make([]byte, 60))
	require.NoError(t, err)

	rotated, err = m.MaybeRotate(40)
	require.NoError(t, err)
	assert.False(t, rotated)

	rotated, err = m.MaybeRotate(41)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, uint64(1), m.ActiveID())
	assert.Equal(t, int64(0), m.ActiveSize())
	assert.Equal(t, [][2]uint64{{0, 1}}, rotations)

	_, err = m.MaybeRotate(101)
	assert.ErrorIs(t, err, ErrRecordTooLarge)
	assert.Equal(t, uint64(1), m.ActiveID(), "oversized writes never rotate")

	segments := m.Segments()
	require.Len(t, segments, 2)
	assert.Equal(t, uint64(0), segments[0].ID)
	assert.Equal(t, uint64(1), segments[1].ID)

	// The superseded segment keeps its bytes and stays readable.
	stat, err := os.Stat(segments[0].Path)
	require.NoError(t, err)
	assert.Equal(t, int64(60), stat.Size())
	got, err := m.ReadAt(0, 0, 60)
	require.NoError(t, err)
	assert.Len(t, got, 60)
}

func TestReadAtUnknownSegment(t *testing.T) {
	m := openTestManager(t, t.TempDir(), 1024)

	_, err := m.ReadAt(42, 0, 1)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInjectedAppendError(t *testing.T) {
	m := openTestManager(t, t.TempDir(), 1024)
	injected := errors.New("disk full")

	m.SetTestingOnlyInjectAppendError(injected)
	_, err := m.Append([]byte("data"))
	assert.ErrorIs(t, err, injected)
	assert.Equal(t, int64(0), m.ActiveSize())

	m.SetTestingOnlyInjectAppendError(nil)
	off, err := m.Append([]byte("data"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)
}

func TestTruncateActive(t *testing.T) {
	m := openTestManager(t, t.TempDir(), 1024)

	_, err := m.Append([]byte("keep-garbage"))
	require.NoError(t, err)
	require.NoError(t, m.Truncate(4))
	assert.Equal(t, int64(4), m.ActiveSize())

	off, err := m.Append([]byte("!"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), off)

	got, err := m.ReadAt(m.ActiveID(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep!"), got)

	assert.Error(t, m.Truncate(100))
}

func TestClosedManager(t *testing.T) {
	m := openTestManager(t, t.TempDir(), 1024)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "Close is idempotent")

	_, err := m.Append([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = m.ReadAt(0, 0, 1)
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.ErrorIs(t, m.Sync(), os.ErrClosed)
}
