package segment

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/aethne0/banana-cask/internal/record"
	"github.com/aethne0/banana-cask/internal/utils"
)

// ErrRecordTooLarge is returned when a single record cannot fit in an empty
// segment.
var ErrRecordTooLarge = errors.New("record exceeds maximum segment size")

// Options holds configuration for the Manager.
type Options struct {
	MaxSegmentSize int64
	Logger         *slog.Logger
	// OnRotate, if set, is called after the active segment has been switched.
	OnRotate func(oldID, newID uint64)
}

// Manager owns the segment files of a single directory: it appends to the
// active segment, rotates it by size and serves ranged reads from any segment.
type Manager struct {
	dir    string
	opts   Options
	logger *slog.Logger

	segments []Info

	active     *os.File
	activeID   uint64
	activeSize int64
	nextID     uint64

	// read-only handles for superseded segments, opened on first read
	readers map[uint64]*os.File

	testingOnlyInjectAppendError error
}

// OpenManager prepares dir for appending.
//
// discovered must be ordered by ID, as returned by Discover. With no
// segments, segment 0 is created; otherwise the highest-numbered segment
// becomes the active one and new segments continue from its counter.
func OpenManager(dir string, discovered []Info, opts Options) (*Manager, error) {
	if opts.MaxSegmentSize <= record.HeaderSize {
		return nil, fmt.Errorf("max segment size %d must exceed record header size %d", opts.MaxSegmentSize, record.HeaderSize)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Manager{
		dir:      dir,
		opts:     opts,
		logger:   opts.Logger.With("component", "segment"),
		segments: append([]Info(nil), discovered...),
		readers:  make(map[uint64]*os.File),
	}

	if len(m.segments) == 0 {
		if err := m.create(0); err != nil {
			return nil, err
		}
		return m, nil
	}

	last := m.segments[len(m.segments)-1]
	f, err := os.OpenFile(last.Path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open active segment %s: %w", last.Path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat active segment %s: %w", last.Path, err)
	}

	m.active = f
	m.activeID = last.ID
	m.activeSize = stat.Size()
	m.nextID = last.ID + 1
	m.logger.Debug("Opened active segment", "segment", last.ID, "size", m.activeSize)
	return m, nil
}

// create makes a new, empty segment and switches the active handle to it.
func (m *Manager) create(id uint64) error {
	path := filepath.Join(m.dir, FormatFileName(id))

	// O_EXCL: an existing segment must never be reused or overwritten.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	m.segments = append(m.segments, Info{ID: id, Path: path})
	m.active = f
	m.activeID = id
	m.activeSize = 0
	m.nextID = id + 1
	m.logger.Info("Created segment", "segment", id, "path", path)
	return nil
}

// SetTestingOnlyInjectAppendError makes every following Append fail with err.
func (m *Manager) SetTestingOnlyInjectAppendError(err error) {
	m.testingOnlyInjectAppendError = err
}

// MaybeRotate starts a new segment if writing pending more bytes would push
// the active segment past the maximum size. It reports whether it rotated.
func (m *Manager) MaybeRotate(pending int64) (bool, error) {
	if pending > m.opts.MaxSegmentSize {
		return false, fmt.Errorf("%w: %d > %d bytes", ErrRecordTooLarge, pending, m.opts.MaxSegmentSize)
	}
	if m.activeSize+pending <= m.opts.MaxSegmentSize {
		return false, nil
	}

	m.logger.Debug("Rotating segment due to size", "current_size", m.activeSize, "pending", pending, "max_size", m.opts.MaxSegmentSize)
	if err := m.Rotate(); err != nil {
		return false, err
	}
	return true, nil
}

// Rotate syncs and closes the active segment and starts the next one.
func (m *Manager) Rotate() error {
	if m.active == nil {
		return os.ErrClosed
	}

	old, oldID := m.active, m.activeID
	if err := old.Sync(); err != nil {
		return fmt.Errorf("failed to sync segment %d before rotation: %w", oldID, err)
	}
	if err := m.create(m.nextID); err != nil {
		return err
	}

	// Reads of the old segment go through a fresh read-only handle.
	if err := old.Close(); err != nil {
		m.logger.Error("Failed to close superseded segment", "segment", oldID, "error", err)
	}

	m.logger.Info("Rotated to new segment", "old_segment", oldID, "segment", m.activeID)
	if m.opts.OnRotate != nil {
		m.opts.OnRotate(oldID, m.activeID)
	}
	return nil
}

// Append writes data at the end of the active segment and returns the offset
// at which it begins.
//
// A failed write is rolled back, so the write position only advances over
// fully written data.
func (m *Manager) Append(data []byte) (int64, error) {
	if m.active == nil {
		return 0, os.ErrClosed
	}
	if m.testingOnlyInjectAppendError != nil {
		return 0, m.testingOnlyInjectAppendError
	}

	offset := m.activeSize
	n, err := m.active.WriteAt(data, offset)
	if err != nil {
		if n > 0 {
			if terr := m.active.Truncate(offset); terr != nil {
				m.logger.Error("Failed to roll back partial write", "segment", m.activeID, "offset", offset, "error", terr)
			}
		}
		return 0, fmt.Errorf("failed to append to segment %d: %w", m.activeID, err)
	}

	m.activeSize += int64(n)
	return offset, nil
}

// ReadAt returns exactly length bytes from segment id starting at offset.
func (m *Manager) ReadAt(id uint64, offset, length int64) ([]byte, error) {
	f, err := m.handle(id)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: segment %d ends before offset %d+%d", record.ErrTruncatedRecord, id, offset, length)
		}
		return nil, fmt.Errorf("failed to read segment %d: %w", id, err)
	}
	return buf, nil
}

func (m *Manager) handle(id uint64) (*os.File, error) {
	if m.active == nil {
		return nil, os.ErrClosed
	}
	if id == m.activeID {
		return m.active, nil
	}
	if f, ok := m.readers[id]; ok {
		return f, nil
	}

	i := sort.Search(len(m.segments), func(i int) bool { return m.segments[i].ID >= id })
	if i == len(m.segments) || m.segments[i].ID != id {
		return nil, fmt.Errorf("segment %d: %w", id, os.ErrNotExist)
	}

	f, err := os.Open(m.segments[i].Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %d for reading: %w", id, err)
	}
	m.readers[id] = f
	return f, nil
}

// Sync flushes the active segment to stable storage.
func (m *Manager) Sync() error {
	if m.active == nil {
		return os.ErrClosed
	}
	if err := m.active.Sync(); err != nil {
		return fmt.Errorf("failed to sync segment %d: %w", m.activeID, err)
	}
	return nil
}

// Truncate shrinks the active segment to size. Only recovery uses this, to
// cut off a torn tail before any new append.
func (m *Manager) Truncate(size int64) error {
	if m.active == nil {
		return os.ErrClosed
	}
	if size > m.activeSize {
		return fmt.Errorf("cannot truncate segment %d from %d up to %d bytes", m.activeID, m.activeSize, size)
	}
	if err := utils.TruncateAt(m.active, size); err != nil {
		return fmt.Errorf("failed to truncate segment %d: %w", m.activeID, err)
	}
	m.activeSize = size
	return nil
}

// Close syncs the active segment and closes every open handle.
func (m *Manager) Close() error {
	if m.active == nil {
		return nil
	}

	err := m.active.Sync()
	if closeErr := m.active.Close(); err == nil {
		err = closeErr
	}
	m.active = nil

	for id, f := range m.readers {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		delete(m.readers, id)
	}
	return err
}

// Segments returns every known segment ordered by ID, the active one last.
func (m *Manager) Segments() []Info {
	return append([]Info(nil), m.segments...)
}

// ActiveID returns the counter of the active segment.
func (m *Manager) ActiveID() uint64 {
	return m.activeID
}

// ActiveSize returns the number of bytes written to the active segment.
func (m *Manager) ActiveSize() int64 {
	return m.activeSize
}

// MaxSegmentSize returns the configured size threshold.
func (m *Manager) MaxSegmentSize() int64 {
	return m.opts.MaxSegmentSize
}
