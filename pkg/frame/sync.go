package frame

import (
	"errors"
	"fmt"
	"time"
)

// Synchronizer finds frame starts in an unstructured byte stream.
//
// It accepts the first occurrence of the marker and does not look at what
// follows. After a failed decode, scanning restarts at the next unread byte,
// so the pipeline always makes progress and eventually resyncs.
type Synchronizer struct {
	s *Stream
}

func NewSynchronizer(s *Stream) *Synchronizer {
	return &Synchronizer{s: s}
}

// Sync consumes bytes until the last two read equal the marker and returns
// the number of bytes skipped before the marker. The stream is left right
// after the marker.
func (sy *Synchronizer) Sync(deadline time.Time) (int, error) {
	var (
		prev byte
		have bool
		n    int
	)
	for {
		b, err := sy.s.readByte(deadline)
		if err != nil {
			if errors.Is(err, errDeadline) {
				return n, fmt.Errorf("%w after %d bytes", ErrSyncTimeout, n)
			}
			return n, closedErr(err)
		}
		n++
		if have && prev == MarkerHi && b == MarkerLo {
			return n - MarkerLength, nil
		}
		prev, have = b, true
	}
}

func closedErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStreamClosed, err)
}
