package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/gobwas/pool/pbytes"
)

// DefaultChunkSize is the read-ahead used when none is given to NewStream.
const DefaultChunkSize = 512

// Source is a byte-oriented transport.
//
// ReadUntil reads up to len(p) bytes and returns no later than deadline.
// A short read with a nil error means the deadline passed before more data
// arrived. io.EOF, or any other error, means the transport is closed.
type Source interface {
	ReadUntil(p []byte, deadline time.Time) (int, error)
}

var errDeadline = errors.New("frame: read deadline exceeded")

// Stream buffers a Source so that the synchronizer can consume bytes one at
// a time while the source is read in chunks. Bytes read ahead stay buffered
// for the next Sync or Decode call.
type Stream struct {
	src  Source
	buf  []byte
	r, w int
	err  error // sticky transport error
}

func NewStream(src Source, chunk int) *Stream {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Stream{
		src: src,
		buf: pbytes.GetLen(chunk),
	}
}

// Buffered returns the number of bytes read from the source but not consumed.
func (s *Stream) Buffered() int {
	return s.w - s.r
}

// Closed reports whether the source was closed and all buffered bytes consumed.
func (s *Stream) Closed() bool {
	return s.err != nil && s.r == s.w
}

// Release returns the read-ahead buffer to the pool. The stream is unusable afterwards.
func (s *Stream) Release() {
	if s.buf == nil {
		return
	}
	pbytes.Put(s.buf)
	s.buf = nil
	s.r, s.w = 0, 0
	if s.err == nil {
		s.err = errors.New("frame: stream released")
	}
}

func (s *Stream) fill(deadline time.Time) error {
	if s.err != nil {
		return s.err
	}
	if !time.Now().Before(deadline) {
		return errDeadline
	}
	s.r, s.w = 0, 0
	n, err := s.src.ReadUntil(s.buf, deadline)
	if n < 0 || n > len(s.buf) {
		return fmt.Errorf("frame: source returned invalid count %d", n)
	}
	s.w = n
	if err != nil {
		s.err = err
		if n > 0 {
			return nil
		}
		return err
	}
	if n == 0 {
		return errDeadline
	}
	return nil
}

func (s *Stream) readByte(deadline time.Time) (byte, error) {
	if s.r == s.w {
		if err := s.fill(deadline); err != nil {
			return 0, err
		}
	}
	b := s.buf[s.r]
	s.r++
	return b, nil
}

// read fills p entirely, or returns the number of bytes read and the
// reason it stopped.
func (s *Stream) read(p []byte, deadline time.Time) (int, error) {
	n := 0
	for n < len(p) {
		if s.r == s.w {
			if err := s.fill(deadline); err != nil {
				return n, err
			}
		}
		c := copy(p[n:], s.buf[s.r:s.w])
		s.r += c
		n += c
	}
	return n, nil
}
