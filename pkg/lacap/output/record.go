package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/norasector/lacap/pkg/frame"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of a frame record.
const (
	fieldSequence       protowire.Number = 1
	fieldVariant        protowire.Number = 2
	fieldDeclaredLength protowire.Number = 3
	fieldRateSelector   protowire.Number = 4
	fieldSampleRate     protowire.Number = 5
	fieldTriggerIndex   protowire.Number = 6
	fieldArrivalTime    protowire.Number = 7
	fieldPayload        protowire.Number = 8
)

const (
	prefixLength = 2
	maxRecord    = math.MaxUint16
)

var ErrShortPacket = errors.New("output: short packet")

// EncodeRecord appends the protobuf wire form of f to b.
func EncodeRecord(b []byte, f *frame.Frame) []byte {
	b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
	b = protowire.AppendVarint(b, f.Sequence)
	b = protowire.AppendTag(b, fieldVariant, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Variant))
	b = protowire.AppendTag(b, fieldDeclaredLength, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.DeclaredLength))
	b = protowire.AppendTag(b, fieldRateSelector, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.RateSelector))
	b = protowire.AppendTag(b, fieldSampleRate, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(f.SampleRate))
	b = protowire.AppendTag(b, fieldTriggerIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.TriggerIndex))
	b = protowire.AppendTag(b, fieldArrivalTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.ArrivalTime.UnixNano()))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Payload)
	return b
}

// DecodeRecord parses a record produced by EncodeRecord. Unknown fields are
// skipped.
func DecodeRecord(b []byte) (*frame.Frame, error) {
	f := &frame.Frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldSampleRate && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			f.SampleRate = math.Float64frombits(v)
			b = b[n:]

		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			f.Payload = append([]byte(nil), v...)
			b = b[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			setVarint(f, num, v)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return f, nil
}

func setVarint(f *frame.Frame, num protowire.Number, v uint64) {
	switch num {
	case fieldSequence:
		f.Sequence = v
	case fieldVariant:
		f.Variant = frame.Variant(v)
	case fieldDeclaredLength:
		f.DeclaredLength = uint16(v)
	case fieldRateSelector:
		f.RateSelector = uint8(v)
	case fieldTriggerIndex:
		f.TriggerIndex = uint16(v)
	case fieldArrivalTime:
		f.ArrivalTime = time.Unix(0, int64(v))
	}
}

// DecodePacket parses one length-prefixed datagram.
func DecodePacket(p []byte) (*frame.Frame, error) {
	if len(p) < prefixLength {
		return nil, ErrShortPacket
	}
	size := int(binary.LittleEndian.Uint16(p))
	if len(p)-prefixLength < size {
		return nil, fmt.Errorf("%w: prefix says %d bytes, got %d", ErrShortPacket, size, len(p)-prefixLength)
	}
	return DecodeRecord(p[prefixLength : prefixLength+size])
}
