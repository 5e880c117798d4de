package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/aethne0/banana-cask/internal/record"
	"github.com/aethne0/banana-cask/internal/segment"
	"golang.org/x/sync/errgroup"
)

// RecoveryIssue describes where replay of a segment stopped early. Records
// from Offset onwards in that segment are not indexed.
type RecoveryIssue struct {
	SegmentID uint64
	Offset    int64
	Err       error
}

func (i RecoveryIssue) String() string {
	return fmt.Sprintf("segment %d offset %d: %v", i.SegmentID, i.Offset, i.Err)
}

type replayedRecord struct {
	key       string
	entry     KeyDirEntry
	tombstone bool
}

// segmentReplay is the decoded content of one segment, in file order.
type segmentReplay struct {
	info     segment.Info
	records  []replayedRecord
	validEnd int64 // offset just past the last valid record
	size     int64
	issue    *RecoveryIssue
}

// replaySegment decodes every valid record of one segment. Corrupt or torn
// records end the segment and are reported through issue; only failures to
// read the file are returned as errors.
func replaySegment(info segment.Info) (segmentReplay, error) {
	replay := segmentReplay{info: info}

	s, err := segment.OpenScanner(info.Path)
	if err != nil {
		return replay, &IOError{Op: "open", Path: info.Path, Err: err}
	}
	defer s.Close()

	for {
		offset, raw, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			var rec *record.Record
			_, rec, err = record.Decode(raw)
			if err == nil {
				replay.records = append(replay.records, replayedRecord{
					key: string(rec.Key),
					entry: KeyDirEntry{
						SegmentID: info.ID,
						Offset:    offset,
						Length:    int64(len(raw)),
						Timestamp: rec.Timestamp,
					},
					tombstone: rec.Tombstone,
				})
				replay.validEnd = offset + int64(len(raw))
				continue
			}
		}

		if errors.Is(err, ErrTruncatedRecord) || errors.Is(err, ErrChecksumMismatch) {
			replay.issue = &RecoveryIssue{SegmentID: info.ID, Offset: offset, Err: err}
			break
		}
		return replay, &IOError{Op: "scan", Path: info.Path, Err: err}
	}

	replay.size = s.Size()
	return replay, nil
}

// rebuild replays segments into c.keyDir. Segments are decoded concurrently
// but applied strictly in order, so the result matches a sequential replay.
// It returns the replay of the last segment, or nil when there are none.
func (c *Cask) rebuild(segments []segment.Info) (*segmentReplay, error) {
	replays := make([]segmentReplay, len(segments))

	g := new(errgroup.Group)
	g.SetLimit(c.opts.RecoveryConcurrency)
	for i, info := range segments {
		g.Go(func() error {
			r, err := replaySegment(info)
			if err != nil {
				return err
			}
			replays[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := 0
	for i := range replays {
		r := &replays[i]
		for _, rr := range r.records {
			if rr.tombstone {
				delete(c.keyDir, rr.key)
			} else {
				c.keyDir[rr.key] = rr.entry
			}
			if rr.entry.Timestamp > c.lastTimestamp {
				c.lastTimestamp = rr.entry.Timestamp
			}
		}
		records += len(r.records)

		if r.issue != nil {
			c.issues = append(c.issues, *r.issue)
			c.logger.Warn("Stopped replaying segment at invalid record",
				"segment", r.info.ID, "offset", r.issue.Offset, "valid_bytes", r.validEnd, "size", r.size, "error", r.issue.Err)
		}
		// Decoded records are no longer needed once applied.
		r.records = nil
	}

	c.logger.Info("Rebuilt keydir", "segments", len(segments), "records", records, "keys", len(c.keyDir), "issues", len(c.issues))

	if len(replays) == 0 {
		return nil, nil
	}
	return &replays[len(replays)-1], nil
}

// repairTail makes sure new appends never land behind invalid bytes in the
// active segment, which the next recovery would otherwise never reach.
func (c *Cask) repairTail(last *segmentReplay) error {
	if last == nil || last.issue == nil {
		return nil
	}

	switch c.opts.TailPolicy {
	case TailTruncate:
		c.logger.Warn("Truncating active segment to last valid record", "segment", last.info.ID, "from", c.manager.ActiveSize(), "to", last.validEnd)
		if err := c.manager.Truncate(last.validEnd); err != nil {
			return &IOError{Op: "truncate", Path: last.info.Path, Err: err}
		}
	default:
		c.logger.Warn("Active segment has an invalid tail, starting a new segment", "segment", last.info.ID)
		if err := c.manager.Rotate(); err != nil {
			return &IOError{Op: "rotate", Path: last.info.Path, Err: err}
		}
	}
	return nil
}
