package segment

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aethne0/banana-cask/internal/record"
)

// Scanner reads raw records from a segment front to back.
//
// It only frames records using their headers; checksum validation is left
// to record.Decode.
type Scanner struct {
	file   *os.File
	reader *bufio.Reader
	size   int64
	offset int64
	header [record.HeaderSize]byte
}

// OpenScanner opens the segment at path for sequential reading.
func OpenScanner(path string) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %s for scanning: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat segment %s: %w", path, err)
	}

	return &Scanner{
		file:   f,
		reader: bufio.NewReaderSize(f, 64*1024),
		size:   stat.Size(),
	}, nil
}

// Next returns the offset and encoded bytes of the next record.
//
// It returns io.EOF at a clean end of the segment and an error wrapping
// record.ErrTruncatedRecord when the segment ends inside a record.
func (s *Scanner) Next() (int64, []byte, error) {
	start := s.offset

	n, err := io.ReadFull(s.reader, s.header[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return start, nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return start, nil, fmt.Errorf("%w: %d header bytes at offset %d", record.ErrTruncatedRecord, n, start)
		}
		return start, nil, err
	}

	h, err := record.ParseHeader(s.header[:])
	if err != nil {
		return start, nil, err
	}
	size, err := h.RecordSize()
	if err != nil {
		return start, nil, err
	}

	// A damaged header can declare any size; never allocate past the file.
	if size > s.size-start {
		return start, nil, fmt.Errorf("%w: record at offset %d declares %d bytes, %d remain",
			record.ErrTruncatedRecord, start, size, s.size-start)
	}

	buf := make([]byte, size)
	copy(buf, s.header[:])
	if _, err := io.ReadFull(s.reader, buf[record.HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return start, nil, fmt.Errorf("%w: record body at offset %d", record.ErrTruncatedRecord, start)
		}
		return start, nil, err
	}

	s.offset += size
	return start, buf, nil
}

// Offset returns the offset of the next unread byte.
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Size returns the size of the segment when the scanner was opened.
func (s *Scanner) Size() int64 {
	return s.size
}

// Close closes the underlying file.
func (s *Scanner) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
