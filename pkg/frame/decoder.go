package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/norasector/lacap/pkg/timebase"
)

// Decoder reads the header and payload following a marker.
//
// The declared length is never used to size the payload read: firmware is
// known to emit inconsistent LEN fields, so exactly payloadSize bytes are
// read and a mismatch is only reported through Frame.LengthMismatch.
type Decoder struct {
	s       *Stream
	variant Variant
	size    int

	hdr [5]byte
	err error
	now func() time.Time
}

// NewDecoder creates a decoder reading frames of the given variant from s.
func NewDecoder(s *Stream, variant Variant, payloadSize int) *Decoder {
	return &Decoder{
		s:       s,
		variant: variant,
		size:    payloadSize,
		now:     time.Now,
	}
}

func (dec *Decoder) Variant() Variant { return dec.variant }
func (dec *Decoder) PayloadSize() int { return dec.size }

// Decode reads one frame body. The stream must be positioned right after a
// marker. f is only modified when the whole frame was read.
func (dec *Decoder) Decode(f *Frame, deadline time.Time) error {
	dec.err = nil

	hdr := dec.hdr[:dec.variant.HeaderLength()]
	dec.read(hdr, deadline)
	if dec.err != nil {
		return fmt.Errorf("frame: could not read %s header: %w", dec.variant, dec.err)
	}

	var (
		declared = binary.LittleEndian.Uint16(hdr[0:2])
		rateSel  uint8
		trigger  uint16
		rate     float64
	)
	switch dec.variant {
	case VariantRateAware:
		rateSel = hdr[2]
		trigger = binary.LittleEndian.Uint16(hdr[3:5])
		if rateSel > timebase.MaxRateSelector {
			return fmt.Errorf("%w (got=%d)", ErrRateSelector, rateSel)
		}
		rate = timebase.RateFromSelector(rateSel)
	default:
		trigger = binary.LittleEndian.Uint16(hdr[2:4])
		rate = timebase.DefaultRateHz
	}

	payload := make([]byte, dec.size)
	dec.read(payload, deadline)
	if dec.err != nil {
		return fmt.Errorf("frame: could not read payload: %w", dec.err)
	}

	*f = Frame{
		Sequence:       f.Sequence,
		Variant:        dec.variant,
		DeclaredLength: declared,
		RateSelector:   rateSel,
		SampleRate:     rate,
		TriggerIndex:   trigger,
		Payload:        payload,
		ArrivalTime:    dec.now(),
	}
	return nil
}

func (dec *Decoder) read(p []byte, deadline time.Time) {
	if dec.err != nil {
		return
	}
	n, err := dec.s.read(p, deadline)
	if err == nil {
		return
	}
	reason := "timeout"
	if !errors.Is(err, errDeadline) {
		reason = err.Error()
	}
	dec.err = fmt.Errorf("%w: got %d/%d bytes (%s)", ErrIncompleteFrame, n, len(p), reason)
}
