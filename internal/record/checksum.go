package record

import "github.com/zeebo/xxh3"

// Checksum is the 128-bit digest stored in the first 16 bytes of a record.
type Checksum struct {
	Hi uint64
	Lo uint64
}

// CalculateChecksum computes the xxh3-128 digest (seed 0) of span.
//
// span is everything that follows the checksum field: timestamp, key_len,
// value_len, key and value. Changing the algorithm or seed changes the file
// format.
func CalculateChecksum(span []byte) Checksum {
	sum := xxh3.Hash128(span)
	return Checksum{Hi: sum.Hi, Lo: sum.Lo}
}

// ValidateChecksum returns true if checksum matches the computed digest of span.
func ValidateChecksum(span []byte, checksum Checksum) bool {
	return CalculateChecksum(span) == checksum
}
