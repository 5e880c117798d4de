package core

import "slices"

// KeyDirEntry represents the in-memory index entry for a single key.
//
// Each entry points to the most recently written record of a key. Older
// records may still exist in superseded segments but are never consulted.
//
// The KeyDir is rebuilt on every Open by replaying the segments; it is
// never persisted.
type KeyDirEntry struct {
	SegmentID uint64 // Counter of the segment containing the record
	Offset    int64  // Byte offset in the segment where the record starts
	Length    int64  // Total size of the record on disk (header + key + value)
	Timestamp uint64 // Timestamp of the record, Unix nanoseconds
}

// KeyDir is the in-memory index mapping keys to their latest on-disk entries.
//
// It is the primary structure used to service read requests efficiently
// without scanning segments.
type KeyDir map[string]KeyDirEntry

func (kd KeyDir) Get(key []byte) (KeyDirEntry, bool) {
	entry, ok := kd[string(key)]
	return entry, ok
}

// Put records entry as the latest location of key, replacing any prior one.
func (kd KeyDir) Put(key []byte, entry KeyDirEntry) {
	kd[string(key)] = entry
}

func (kd KeyDir) Delete(key []byte) {
	delete(kd, string(key))
}

func (kd KeyDir) Len() int {
	return len(kd)
}

// Keys returns every indexed key in ascending byte order.
func (kd KeyDir) Keys() [][]byte {
	names := make([]string, 0, len(kd))
	for k := range kd {
		names = append(names, k)
	}
	slices.Sort(names)

	keys := make([][]byte, len(names))
	for i, k := range names {
		keys[i] = []byte(k)
	}
	return keys
}
