package core

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SyncMode selects when appended records are fsynced.
type SyncMode int

const (
	// SyncNone leaves flushing to the operating system. Rotation and Close
	// still fsync.
	SyncNone SyncMode = iota
	// SyncAlways fsyncs the active segment after every append.
	SyncAlways
	// SyncInterval fsyncs the active segment from a background goroutine.
	SyncInterval
)

func (m SyncMode) String() string {
	switch m {
	case SyncNone:
		return "none"
	case SyncAlways:
		return "always"
	case SyncInterval:
		return "interval"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// ParseSyncMode maps "none", "always" or "interval" to a SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return SyncNone, nil
	case "always":
		return SyncAlways, nil
	case "interval":
		return SyncInterval, nil
	}
	return SyncNone, fmt.Errorf("unknown sync mode %q", s)
}

// TailPolicy decides what Open does when the active segment ends in bytes
// that do not form a valid record, typically a write torn by a crash.
type TailPolicy int

const (
	// TailRotate leaves the damaged segment untouched and starts a new
	// segment for subsequent writes.
	TailRotate TailPolicy = iota
	// TailTruncate cuts the active segment back to its last valid record.
	TailTruncate
)

func (p TailPolicy) String() string {
	switch p {
	case TailRotate:
		return "rotate"
	case TailTruncate:
		return "truncate"
	default:
		return fmt.Sprintf("TailPolicy(%d)", int(p))
	}
}

// ParseTailPolicy maps "rotate" or "truncate" to a TailPolicy.
func ParseTailPolicy(s string) (TailPolicy, error) {
	switch strings.ToLower(s) {
	case "", "rotate":
		return TailRotate, nil
	case "truncate":
		return TailTruncate, nil
	}
	return TailRotate, fmt.Errorf("unknown tail policy %q", s)
}

// Options holds the tunables of a Cask. Use the With* functions to set them.
type Options struct {
	Logger              *slog.Logger
	SyncMode            SyncMode
	SyncInterval        time.Duration
	TailPolicy          TailPolicy
	RecoveryConcurrency int
	OnRotate            func(oldID, newID uint64)

	now func() time.Time
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Logger:              slog.Default(),
		SyncMode:            SyncNone,
		SyncInterval:        DefaultSyncInterval,
		TailPolicy:          TailRotate,
		RecoveryConcurrency: DefaultRecoveryConcurrency,
		now:                 time.Now,
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithSyncMode(mode SyncMode) Option {
	return func(o *Options) {
		o.SyncMode = mode
	}
}

// WithSyncInterval sets the fsync period used by SyncInterval.
func WithSyncInterval(d time.Duration) Option {
	return func(o *Options) {
		o.SyncInterval = d
	}
}

func WithTailPolicy(p TailPolicy) Option {
	return func(o *Options) {
		o.TailPolicy = p
	}
}

// WithRecoveryConcurrency bounds how many segments are decoded in parallel
// while the keydir is rebuilt.
func WithRecoveryConcurrency(n int) Option {
	return func(o *Options) {
		o.RecoveryConcurrency = n
	}
}

// WithOnRotate registers a callback run after each segment rotation, with
// the store lock held.
func WithOnRotate(fn func(oldID, newID uint64)) Option {
	return func(o *Options) {
		o.OnRotate = fn
	}
}

func withClock(now func() time.Time) Option {
	return func(o *Options) {
		o.now = now
	}
}

func (o *Options) validate(maxSegmentSize int64) error {
	if maxSegmentSize <= HeaderSize {
		return &ValidationError{Field: "max_segment_size", Value: fmt.Sprint(maxSegmentSize),
			Message: fmt.Sprintf("must exceed the %d byte record header", HeaderSize)}
	}
	if o.SyncMode < SyncNone || o.SyncMode > SyncInterval {
		return &ValidationError{Field: "sync_mode", Value: o.SyncMode.String(), Message: "unknown mode"}
	}
	if o.SyncMode == SyncInterval && o.SyncInterval < MinimumSyncInterval {
		return &ValidationError{Field: "sync_interval", Value: o.SyncInterval.String(),
			Message: fmt.Sprintf("must be at least %s", MinimumSyncInterval)}
	}
	if o.TailPolicy < TailRotate || o.TailPolicy > TailTruncate {
		return &ValidationError{Field: "tail_policy", Value: o.TailPolicy.String(), Message: "unknown policy"}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.RecoveryConcurrency <= 0 {
		o.RecoveryConcurrency = DefaultRecoveryConcurrency
	}
	if o.now == nil {
		o.now = time.Now
	}
	return nil
}
