package frame

import "errors"

var (
	// ErrSyncTimeout is returned when no marker was found before the deadline.
	ErrSyncTimeout = errors.New("frame: sync timeout")

	// ErrIncompleteFrame is returned when the header or payload is truncated.
	// The partial frame is discarded; scanning resumes at the next unread byte.
	ErrIncompleteFrame = errors.New("frame: incomplete frame")

	// ErrLengthMismatch is informational: the declared length differs from
	// the payload size. Decoding proceeds with the fixed size.
	ErrLengthMismatch = errors.New("frame: declared length mismatch")

	// ErrRateSelector is returned for a rate selector outside [0, 15].
	ErrRateSelector = errors.New("frame: invalid rate selector")

	// ErrStreamClosed is terminal: the underlying transport is gone.
	ErrStreamClosed = errors.New("frame: stream closed")
)

// Recoverable reports whether acquisition may continue after err.
func Recoverable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrSyncTimeout),
		errors.Is(err, ErrIncompleteFrame),
		errors.Is(err, ErrRateSelector):
		return true
	}
	return false
}
