package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Record is a single key-value entry as it is persisted in a segment.
//
// On-disk layout, little-endian, u128 fields written low word first:
//
//	| checksum u128 | timestamp u128 | key_len u64 | value_len u64 | key | value |
//
// The checksum covers every byte after the checksum field. The most
// significant bit of value_len marks a tombstone, which carries no value.
type Record struct {
	Timestamp uint64 // Unix timestamp in nanoseconds
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Header is the fixed-width prefix of every record.
type Header struct {
	ChecksumLo  uint64
	ChecksumHi  uint64
	TimestampLo uint64
	TimestampHi uint64 // reserved, written as zero
	KeySize     uint64
	ValueSize   uint64 // tombstoneFlag | value length
}

// Checksum (16) + Timestamp (16) + KeySize (8) + ValueSize (8)
const HeaderSize = 48

const checksumSize = 16

const tombstoneFlag = uint64(1) << 63

var (
	// ErrChecksumMismatch is returned when the stored checksum does not match
	// the recomputed digest of the record bytes.
	ErrChecksumMismatch = errors.New("record checksum mismatch")

	// ErrTruncatedRecord is returned when fewer bytes are available than the
	// record header declares.
	ErrTruncatedRecord = errors.New("truncated record")

	errTombstoneValue = errors.New("tombstone record cannot carry a value")
)

// EncodedSize returns the number of bytes a record with the given key and
// value lengths occupies on disk.
func EncodedSize(keyLen, valueLen int) int64 {
	return int64(HeaderSize) + int64(keyLen) + int64(valueLen)
}

// Encode serializes rec into its on-disk form, checksum included.
//
// Key and value lengths are Go slice lengths, so they always fit the u64
// header fields and never collide with the tombstone bit.
func Encode(rec *Record) ([]byte, error) {
	valueSize := uint64(len(rec.Value))
	if rec.Tombstone {
		if len(rec.Value) != 0 {
			return nil, errTombstoneValue
		}
		valueSize = tombstoneFlag
	}

	header := Header{
		TimestampLo: rec.Timestamp,
		KeySize:     uint64(len(rec.Key)),
		ValueSize:   valueSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, EncodedSize(len(rec.Key), len(rec.Value))))
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	buf.Write(rec.Key)
	buf.Write(rec.Value)

	// The checksum slot is zero while hashing; the hash never covers it.
	data := buf.Bytes()
	sum := CalculateChecksum(data[checksumSize:])
	binary.LittleEndian.PutUint64(data[0:8], sum.Lo)
	binary.LittleEndian.PutUint64(data[8:16], sum.Hi)

	return data, nil
}

// ParseHeader decodes the fixed header at the start of b without validating
// the checksum.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncatedRecord, HeaderSize, len(b))
	}
	if err := binary.Read(bytes.NewReader(b[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
	}
	return h, nil
}

// IsTombstone reports whether the header describes a deletion marker.
func (h *Header) IsTombstone() bool {
	return h.ValueSize&tombstoneFlag != 0
}

// ValueLen returns the value length with the tombstone flag masked off.
func (h *Header) ValueLen() uint64 {
	return h.ValueSize &^ tombstoneFlag
}

// Checksum returns the stored checksum.
func (h *Header) Checksum() Checksum {
	return Checksum{Hi: h.ChecksumHi, Lo: h.ChecksumLo}
}

// RecordSize returns the total encoded length declared by the header.
//
// A tombstone with a non-zero value length, or lengths that cannot be
// represented as a file offset, can only come from damaged bytes and are
// reported as truncation.
func (h *Header) RecordSize() (int64, error) {
	valueLen := h.ValueLen()
	if h.IsTombstone() && valueLen != 0 {
		return 0, fmt.Errorf("%w: tombstone declares %d value bytes", ErrTruncatedRecord, valueLen)
	}
	limit := uint64(math.MaxInt64 - HeaderSize)
	if h.KeySize > limit || valueLen > limit-h.KeySize {
		return 0, fmt.Errorf("%w: declared size overflows (key %d, value %d)", ErrTruncatedRecord, h.KeySize, valueLen)
	}
	return int64(HeaderSize + h.KeySize + valueLen), nil
}

// Decode validates and decodes the record at the start of span, returning
// the number of bytes it occupies.
//
// Key and Value of the returned record alias span.
func Decode(span []byte) (int, *Record, error) {
	h, err := ParseHeader(span)
	if err != nil {
		return 0, nil, err
	}

	size, err := h.RecordSize()
	if err != nil {
		return 0, nil, err
	}
	if int64(len(span)) < size {
		return 0, nil, fmt.Errorf("%w: record needs %d bytes, have %d", ErrTruncatedRecord, size, len(span))
	}

	data := span[:size]
	if !ValidateChecksum(data[checksumSize:], h.Checksum()) {
		return 0, nil, ErrChecksumMismatch
	}

	keyEnd := HeaderSize + h.KeySize
	rec := &Record{
		Timestamp: h.TimestampLo,
		Key:       data[HeaderSize:keyEnd],
		Tombstone: h.IsTombstone(),
	}
	if !rec.Tombstone {
		rec.Value = data[keyEnd:]
	}

	return int(size), rec, nil
}
