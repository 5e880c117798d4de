// Package lock guards a store directory against concurrent use by more than
// one process.
package lock

import "errors"

// FileName is the lock file created inside a locked directory. Segment
// discovery must skip it.
const FileName = "LOCK"

// ErrLocked is returned when another process already holds the directory lock.
var ErrLocked = errors.New("directory already in use by another banana-cask instance")
