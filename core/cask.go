// Package core implements banana-cask, an append-only key-value store in the
// Bitcask tradition: every write is appended to the active segment file and
// an in-memory keydir maps each key to the location of its latest record.
package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aethne0/banana-cask/internal/lock"
	"github.com/aethne0/banana-cask/internal/record"
	"github.com/aethne0/banana-cask/internal/segment"
)

// SegmentInfo identifies one segment file of a Cask.
type SegmentInfo = segment.Info

// Cask is an open store directory. All methods are safe for concurrent use;
// a single mutex serialises them.
type Cask struct {
	mu sync.Mutex

	dir    string
	opts   Options
	logger *slog.Logger

	lockFile *os.File
	manager  *segment.Manager
	keyDir   KeyDir

	lastTimestamp uint64
	issues        []RecoveryIssue
	closed        bool

	syncCancel context.CancelFunc
	syncWg     sync.WaitGroup
}

// Open opens the store in dir, creating the directory if needed, and
// rebuilds the keydir from its segments.
//
// maxSegmentSize bounds the size of every segment; a record that does not
// fit an empty segment is rejected with ErrRecordTooLarge. Records that fail
// validation during the rebuild do not fail Open, see RecoveryIssues.
func Open(dir string, maxSegmentSize int64, opts ...Option) (*Cask, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(maxSegmentSize); err != nil {
		return nil, err
	}

	c := &Cask{
		dir:    dir,
		opts:   o,
		logger: o.Logger.With("component", "cask", "dir", dir),
		keyDir: make(KeyDir),
	}

	// 0 (special bit - ignored), 7 (rwx - owner), 5 (r-x - user group), 5 (r-x - others)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	lf, err := lock.LockDirectory(dir)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, err
		}
		return nil, &IOError{Op: "lock", Path: dir, Err: err}
	}
	c.lockFile = lf

	if err := c.open(maxSegmentSize); err != nil {
		if c.manager != nil {
			c.manager.Close()
		}
		lock.UnlockDirectory(lf)
		return nil, err
	}

	if c.opts.SyncMode == SyncInterval {
		ctx, cancel := context.WithCancel(context.Background())
		c.syncCancel = cancel
		c.syncWg.Add(1)
		go c.syncDiskInterval(ctx, c.opts.SyncInterval)
	}

	c.logger.Info("Opened cask", "segments", len(c.manager.Segments()), "active_segment", c.manager.ActiveID(),
		"keys", c.keyDir.Len(), "sync_mode", c.opts.SyncMode.String())
	return c, nil
}

func (c *Cask) open(maxSegmentSize int64) error {
	discovered, err := segment.Discover(c.dir, lock.FileName)
	if err != nil {
		if segment.IsForeignFile(err) {
			return err
		}
		return &IOError{Op: "discover", Path: c.dir, Err: err}
	}

	last, err := c.rebuild(discovered)
	if err != nil {
		return err
	}

	c.manager, err = segment.OpenManager(c.dir, discovered, segment.Options{
		MaxSegmentSize: maxSegmentSize,
		Logger:         c.opts.Logger,
		OnRotate:       c.opts.OnRotate,
	})
	if err != nil {
		return &IOError{Op: "open", Path: c.dir, Err: err}
	}

	return c.repairTail(last)
}

// Put stores value under key, replacing any previous value.
func (c *Cask) Put(key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	entry, err := c.write(&record.Record{Key: key, Value: value})
	if err != nil {
		return err
	}
	c.keyDir.Put(key, entry)
	return nil
}

// Get returns the latest value stored under key. A missing key is reported
// through found, not as an error.
func (c *Cask) Get(key []byte) (value []byte, found bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrClosed
	}

	entry, ok := c.keyDir.Get(key)
	if !ok {
		return nil, false, nil
	}

	raw, err := c.manager.ReadAt(entry.SegmentID, entry.Offset, entry.Length)
	if err != nil {
		if errors.Is(err, ErrTruncatedRecord) {
			return nil, false, fmt.Errorf("get %q: %w", key, err)
		}
		return nil, false, &IOError{Op: "read", Path: segment.FormatFileName(entry.SegmentID), Err: err}
	}

	n, rec, err := record.Decode(raw)
	if errors.Is(err, ErrTruncatedRecord) {
		// raw holds a record that was fully written, so a header declaring
		// more bytes than that has been damaged.
		err = fmt.Errorf("%w: header declares more than %d bytes", ErrChecksumMismatch, entry.Length)
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q from segment %d offset %d: %w", key, entry.SegmentID, entry.Offset, err)
	}
	if int64(n) != entry.Length || rec.Tombstone || !bytes.Equal(rec.Key, key) {
		return nil, false, fmt.Errorf("%w: segment %d offset %d does not hold the value of %q",
			ErrChecksumMismatch, entry.SegmentID, entry.Offset, key)
	}
	return rec.Value, true, nil
}

// Delete removes key by appending a tombstone. Deleting a missing key is a
// no-op.
func (c *Cask) Delete(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, ok := c.keyDir.Get(key); !ok {
		return nil
	}

	if _, err := c.write(&record.Record{Key: key, Tombstone: true}); err != nil {
		return err
	}
	c.keyDir.Delete(key)
	return nil
}

// write appends rec to the active segment, rotating first when it would not
// fit. The keydir is left to the caller, so a failed append never touches it.
func (c *Cask) write(rec *record.Record) (KeyDirEntry, error) {
	size := record.EncodedSize(len(rec.Key), len(rec.Value))
	if _, err := c.manager.MaybeRotate(size); err != nil {
		if errors.Is(err, ErrRecordTooLarge) {
			return KeyDirEntry{}, err
		}
		return KeyDirEntry{}, &IOError{Op: "rotate", Path: c.dir, Err: err}
	}

	rec.Timestamp = c.nextTimestamp()
	data, err := record.Encode(rec)
	if err != nil {
		return KeyDirEntry{}, err
	}

	offset, err := c.manager.Append(data)
	if err != nil {
		return KeyDirEntry{}, &IOError{Op: "append", Path: segment.FormatFileName(c.manager.ActiveID()), Err: err}
	}

	if c.opts.SyncMode == SyncAlways {
		if err := c.manager.Sync(); err != nil {
			c.logger.Error("Failed to sync after append", "segment", c.manager.ActiveID(), "error", err)
			return KeyDirEntry{}, &IOError{Op: "sync", Path: segment.FormatFileName(c.manager.ActiveID()), Err: err}
		}
	}

	return KeyDirEntry{
		SegmentID: c.manager.ActiveID(),
		Offset:    offset,
		Length:    int64(len(data)),
		Timestamp: rec.Timestamp,
	}, nil
}

// nextTimestamp never goes backwards, neither within a run nor across a
// restart, where it continues from the newest replayed record.
func (c *Cask) nextTimestamp() uint64 {
	ts := uint64(c.opts.now().UnixNano())
	if ts < c.lastTimestamp {
		ts = c.lastTimestamp
	}
	c.lastTimestamp = ts
	return ts
}

// Has reports whether key currently has a value.
func (c *Cask) Has(key []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}
	_, ok := c.keyDir.Get(key)
	return ok, nil
}

// Len returns the number of live keys.
func (c *Cask) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	return c.keyDir.Len(), nil
}

// Keys returns every live key in ascending byte order.
func (c *Cask) Keys() ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.keyDir.Keys(), nil
}

// Segments returns the segment files ordered by counter, the active one last.
func (c *Cask) Segments() ([]SegmentInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.manager.Segments(), nil
}

// RecoveryIssues lists the segments whose replay stopped at an invalid
// record during Open.
func (c *Cask) RecoveryIssues() []RecoveryIssue {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]RecoveryIssue(nil), c.issues...)
}

// Sync flushes the active segment to stable storage.
func (c *Cask) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.manager.Sync(); err != nil {
		return &IOError{Op: "sync", Path: segment.FormatFileName(c.manager.ActiveID()), Err: err}
	}
	return nil
}

func (c *Cask) syncDiskInterval(ctx context.Context, interval time.Duration) {
	defer c.syncWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			var err error
			if !c.closed {
				err = c.manager.Sync()
			}
			c.mu.Unlock()

			if err != nil {
				c.logger.Error("Error syncing active segment", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

// Close syncs and closes every segment and releases the directory lock.
// Closing an already closed Cask is a no-op.
func (c *Cask) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.syncCancel != nil {
		c.syncCancel()
		c.syncWg.Wait()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if err := c.manager.Close(); err != nil {
		errs = append(errs, &IOError{Op: "close", Path: c.dir, Err: err})
	}
	if err := lock.UnlockDirectory(c.lockFile); err != nil {
		errs = append(errs, &IOError{Op: "unlock", Path: c.dir, Err: err})
	}

	c.logger.Info("Closed cask")
	return errors.Join(errs...)
}
