package core

import (
	"errors"
	"fmt"

	"github.com/aethne0/banana-cask/internal/lock"
	"github.com/aethne0/banana-cask/internal/record"
	"github.com/aethne0/banana-cask/internal/segment"
)

var (
	// ErrClosed is returned by every operation on a closed Cask.
	ErrClosed = errors.New("cask is closed")

	ErrChecksumMismatch = record.ErrChecksumMismatch
	ErrTruncatedRecord  = record.ErrTruncatedRecord
	ErrRecordTooLarge   = segment.ErrRecordTooLarge
	ErrLocked           = lock.ErrLocked
)

// ForeignFileError reports an entry in the store directory that the engine
// did not create.
type ForeignFileError = segment.ForeignFileError

// IsForeignFile checks if err (or any error in its chain) is a ForeignFileError.
func IsForeignFile(err error) bool {
	return segment.IsForeignFile(err)
}

// IOError wraps a failure of the underlying file system.
type IOError struct {
	Op   string // e.g. "append", "read", "sync"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsIOError checks if err (or any error in its chain) is an IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// ValidationError is returned by Open for unusable options.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if err (or any error in its chain) is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}
