package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes frames in wire format.
type Encoder struct {
	w       io.Writer
	variant Variant
	buf     [MarkerLength + 5]byte
	err     error
}

func NewEncoder(w io.Writer, variant Variant) *Encoder {
	return &Encoder{w: w, variant: variant}
}

// Encode writes the marker, header and payload of f.
// DeclaredLength is written as is, so mismatching frames can be produced.
func (enc *Encoder) Encode(f *Frame) error {
	if enc.err != nil {
		return enc.err
	}

	hdr := enc.buf[:MarkerLength+enc.variant.HeaderLength()]
	hdr[0] = MarkerHi
	hdr[1] = MarkerLo
	binary.LittleEndian.PutUint16(hdr[2:4], f.DeclaredLength)
	switch enc.variant {
	case VariantRateAware:
		hdr[4] = f.RateSelector
		binary.LittleEndian.PutUint16(hdr[5:7], f.TriggerIndex)
	default:
		binary.LittleEndian.PutUint16(hdr[4:6], f.TriggerIndex)
	}

	enc.write(hdr)
	enc.write(f.Payload)
	if enc.err != nil {
		return fmt.Errorf("frame: could not encode frame: %w", enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}
