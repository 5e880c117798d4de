package core

import (
	"time"

	"github.com/aethne0/banana-cask/internal/record"
)

const (
	OneMegabyte = 1024 * 1024 // 1024 (1KB) * 1024 => 1MB

	DefaultMaxSegmentSizeMB = 64

	// HeaderSize is the fixed per-record overhead; every segment must be
	// larger than it.
	HeaderSize = record.HeaderSize

	DefaultSyncInterval = 15 * time.Second
	MinimumSyncInterval = 10 * time.Millisecond

	DefaultRecoveryConcurrency = 4
)
