package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
)

// Info identifies one segment file on disk.
type Info struct {
	ID   uint64
	Path string
}

// ForeignFileError reports a directory entry that is neither a segment nor a
// file the engine itself owns.
type ForeignFileError struct {
	Dir  string
	Name string
	Err  error
}

func (e *ForeignFileError) Error() string {
	return fmt.Sprintf("foreign file %q in segment directory %s", e.Name, e.Dir)
}

func (e *ForeignFileError) Unwrap() error {
	return e.Err
}

// IsForeignFile checks if err (or any error in its chain) is a ForeignFileError.
func IsForeignFile(err error) bool {
	var foreign *ForeignFileError
	return errors.As(err, &foreign)
}

// Discover lists the segments in dir ordered by their counter.
//
// Names listed in reserved are skipped. Every other entry, including
// subdirectories, must be a segment file or Discover fails with a
// *ForeignFileError.
func Discover(dir string, reserved ...string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment directory %s: %w", dir, err)
	}

	segments := make([]Info, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if slices.Contains(reserved, name) {
			continue
		}

		id, err := ParseFileName(name)
		if err != nil || entry.IsDir() {
			return nil, &ForeignFileError{Dir: dir, Name: name, Err: err}
		}
		segments = append(segments, Info{ID: id, Path: filepath.Join(dir, name)})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].ID < segments[j].ID
	})
	return segments, nil
}
