// Package frame locates and decodes logic-analyzer capture frames
// carried over a byte-oriented transport.
//
// A frame on the wire is a 2-byte marker (0x55 0xAA) followed by a
// little-endian header and a fixed-size payload where each byte holds one
// sampling instant of 8 digital channels:
//
//	legacy:     LEN:u16 TRIGGER:u16 PAYLOAD[size]
//	rate-aware: LEN:u16 RATE_SEL:u8 TRIGGER:u16 PAYLOAD[size]
package frame

import (
	"fmt"
	"strings"
	"time"

	"github.com/norasector/lacap/pkg/timebase"
)

const (
	MarkerHi byte = 0x55
	MarkerLo byte = 0xAA

	MarkerLength = 2

	// PayloadSize is the payload size emitted by current firmware.
	PayloadSize = 2048
)

// Variant selects the header layout of a frame.
type Variant int

const (
	VariantLegacy Variant = iota
	VariantRateAware
)

// HeaderLength returns the number of header bytes following the marker.
func (v Variant) HeaderLength() int {
	if v == VariantRateAware {
		return 5
	}
	return 4
}

func (v Variant) String() string {
	switch v {
	case VariantLegacy:
		return "legacy"
	case VariantRateAware:
		return "rate-aware"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant parses the names returned by Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "a":
		return VariantLegacy, nil
	case "rate-aware", "rate_aware", "rate", "b":
		return VariantRateAware, nil
	}
	return 0, fmt.Errorf("frame: unknown protocol variant %q", s)
}

// UnmarshalYAML lets configuration files name the variant.
func (v *Variant) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseVariant(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Frame is one decoded capture.
// Frames handed out by the pipeline must not be modified.
type Frame struct {
	Sequence       uint64
	Variant        Variant
	DeclaredLength uint16
	RateSelector   uint8
	SampleRate     float64 // Hz
	TriggerIndex   uint16  // cumulative device counter, see TriggerPosition
	Payload        []byte
	ArrivalTime    time.Time
}

// TriggerPosition is the trigger index wrapped into the payload.
func (f *Frame) TriggerPosition() int {
	return timebase.TriggerPosition(f.TriggerIndex, len(f.Payload))
}

// TriggerTime is the in-frame trigger time in seconds.
func (f *Frame) TriggerTime() float64 {
	return timebase.TriggerTime(f.SampleRate, f.TriggerIndex, len(f.Payload))
}

// Duration is the time spanned by the payload.
func (f *Frame) Duration() time.Duration {
	return time.Duration(timebase.SampleTime(f.SampleRate, len(f.Payload)) * float64(time.Second))
}

func (f *Frame) PreTrigger() int  { return f.TriggerPosition() }
func (f *Frame) PostTrigger() int { return len(f.Payload) - f.TriggerPosition() }

// LengthMismatch reports whether the declared length disagrees with the
// payload actually read. The result wraps ErrLengthMismatch.
func (f *Frame) LengthMismatch() error {
	if int(f.DeclaredLength) == len(f.Payload) {
		return nil
	}
	return fmt.Errorf("%w: declared=%d read=%d", ErrLengthMismatch, f.DeclaredLength, len(f.Payload))
}

// DistinctValues counts the distinct byte values among the first n samples.
// Test patterns from the device typically produce very few.
func (f *Frame) DistinctValues(n int) int {
	if n > len(f.Payload) {
		n = len(f.Payload)
	}
	var seen [256]bool
	cnt := 0
	for _, v := range f.Payload[:n] {
		if !seen[v] {
			seen[v] = true
			cnt++
		}
	}
	return cnt
}
