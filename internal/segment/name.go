package segment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	FilePrefix = "d"
	FileExt    = ".banana"

	// Counters are written as 32 hex digits (u128 wide); only the low 64
	// bits are ever allocated.
	counterDigits = 32
)

// ErrInvalidName is returned by ParseFileName for anything that is not a
// segment file name.
var ErrInvalidName = errors.New("not a segment file name")

// FormatFileName returns the file name of the segment with the given counter.
func FormatFileName(id uint64) string {
	return fmt.Sprintf("%s%032x%s", FilePrefix, id, FileExt)
}

// ParseFileName extracts the counter from a segment file name.
//
// The name must match FormatFileName exactly: prefix, 32 lowercase hex
// digits, extension. Anything else is rejected.
func ParseFileName(name string) (uint64, error) {
	if len(name) != len(FilePrefix)+counterDigits+len(FileExt) ||
		!strings.HasPrefix(name, FilePrefix) ||
		!strings.HasSuffix(name, FileExt) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	digits := name[len(FilePrefix) : len(FilePrefix)+counterDigits]
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if !('0' <= c && c <= '9') && !('a' <= c && c <= 'f') {
			return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}

	if strings.TrimLeft(digits[:16], "0") != "" {
		return 0, fmt.Errorf("%w: counter in %q exceeds 64 bits", ErrInvalidName, name)
	}

	id, err := strconv.ParseUint(digits[16:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidName, name, err)
	}
	return id, nil
}
