// Package frame implements the bit-exact wire codec for strand's 13 frame
// types. All integers are big-endian; DATA carries an explicit payload
// length so a short buffer is detected rather than over-read.
package frame

import (
	"encoding/binary"

	"github.com/katzenpost/strand/errs"
)

// Type is the one-byte frame type tag.
type Type byte

const (
	TypeData          Type = 0x01
	TypeAck           Type = 0x02
	TypeNack          Type = 0x03
	TypeFin           Type = 0x04
	TypeRst           Type = 0x05
	TypePing          Type = 0x06
	TypePong          Type = 0x07
	TypeWindowUpdate  Type = 0x08
	TypeStreamOpen    Type = 0x10
	TypeStreamAck     Type = 0x11
	TypeStreamClose   Type = 0x12
	TypeStreamReset   Type = 0x13
	TypeCongestion    Type = 0x40
)

// DataFlag is the DATA frame's single flags byte.
type DataFlag byte

const (
	FlagNone     DataFlag = 0x00
	FlagFin      DataFlag = 0x01
	FlagKeyFrame DataFlag = 0x02
)

// Range is an inclusive-exclusive (or caller-defined) sequence range used
// by ACK and NACK.
type Range struct {
	Start, End uint32
}

// Frame is the tagged union of all 13 wire variants. Exactly one of the
// per-variant fields is meaningful for a given Type; Encode/Decode only
// touch the fields relevant to f.Type.
type Frame struct {
	Type Type

	StreamID uint32

	// DATA
	Seq     uint32
	Flags   DataFlag
	Payload []byte

	// ACK / NACK
	AckSeq uint32
	Ranges []Range

	// RST / STREAM_RESET
	ErrorCode uint32

	// PING / PONG
	PingID uint64

	// WINDOW_UPDATE
	Increment uint32

	// STREAM_OPEN
	Mode byte

	// CONGESTION
	Cwnd  uint32
	RttUs uint32
}

// MaxPayloadSize bounds a single DATA frame's payload; callers constructing
// frames from application writes must respect it (see errs.PayloadTooLarge).
const MaxPayloadSize = 1 << 20

// EncodedLen returns the exact number of bytes Encode will produce for f,
// without allocating. Callers use it to pre-size buffers; tests check that
// it matches len(Encode(f)) for every frame.
func EncodedLen(f *Frame) int {
	switch f.Type {
	case TypeData:
		return 1 + 4 + 4 + 1 + 4 + len(f.Payload)
	case TypeAck:
		return 1 + 4 + 4 + 2 + 8*len(f.Ranges)
	case TypeNack:
		return 1 + 4 + 2 + 8*len(f.Ranges)
	case TypeFin:
		return 1 + 4
	case TypeRst:
		return 1 + 4 + 4
	case TypePing, TypePong:
		return 1 + 8
	case TypeWindowUpdate:
		return 1 + 4 + 4
	case TypeStreamOpen:
		return 1 + 4 + 1
	case TypeStreamAck, TypeStreamClose:
		return 1 + 4
	case TypeStreamReset:
		return 1 + 4 + 4
	case TypeCongestion:
		return 1 + 4 + 4 + 4
	default:
		return 1
	}
}

// Encode serializes f into a newly allocated buffer of exactly
// EncodedLen(f) bytes.
func Encode(f *Frame) ([]byte, error) {
	n := EncodedLen(f)
	buf := make([]byte, n)
	if err := EncodeInto(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto serializes f into buf, which must be at least EncodedLen(f)
// bytes long.
func EncodeInto(f *Frame, buf []byte) error {
	need := EncodedLen(f)
	if len(buf) < need {
		return &errs.BufferTooSmall{Need: need, Have: len(buf)}
	}
	buf[0] = byte(f.Type)
	b := buf[1:]
	switch f.Type {
	case TypeData:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
		binary.BigEndian.PutUint32(b[4:8], f.Seq)
		b[8] = byte(f.Flags)
		binary.BigEndian.PutUint32(b[9:13], uint32(len(f.Payload)))
		copy(b[13:], f.Payload)
	case TypeAck:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
		binary.BigEndian.PutUint32(b[4:8], f.AckSeq)
		binary.BigEndian.PutUint16(b[8:10], uint16(len(f.Ranges)))
		putRanges(b[10:], f.Ranges)
	case TypeNack:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
		binary.BigEndian.PutUint16(b[4:6], uint16(len(f.Ranges)))
		putRanges(b[6:], f.Ranges)
	case TypeFin:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
	case TypeRst:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
		binary.BigEndian.PutUint32(b[4:8], f.ErrorCode)
	case TypePing, TypePong:
		binary.BigEndian.PutUint64(b[0:8], f.PingID)
	case TypeWindowUpdate:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
		binary.BigEndian.PutUint32(b[4:8], f.Increment)
	case TypeStreamOpen:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
		b[4] = f.Mode
	case TypeStreamAck, TypeStreamClose:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
	case TypeStreamReset:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
		binary.BigEndian.PutUint32(b[4:8], f.ErrorCode)
	case TypeCongestion:
		binary.BigEndian.PutUint32(b[0:4], f.StreamID)
		binary.BigEndian.PutUint32(b[4:8], f.Cwnd)
		binary.BigEndian.PutUint32(b[8:12], f.RttUs)
	default:
		return &errs.UnknownFrameType{Byte: byte(f.Type)}
	}
	return nil
}

func putRanges(b []byte, ranges []Range) {
	for i, r := range ranges {
		binary.BigEndian.PutUint32(b[i*8:i*8+4], r.Start)
		binary.BigEndian.PutUint32(b[i*8+4:i*8+8], r.End)
	}
}

func getRanges(b []byte, count int) []Range {
	if count == 0 {
		return nil
	}
	ranges := make([]Range, count)
	for i := 0; i < count; i++ {
		ranges[i].Start = binary.BigEndian.Uint32(b[i*8 : i*8+4])
		ranges[i].End = binary.BigEndian.Uint32(b[i*8+4 : i*8+8])
	}
	return ranges
}

// Decode parses a single frame from buf and returns it along with the
// number of bytes consumed.
func Decode(buf []byte) (*Frame, int, error) {
	if len(buf) < 1 {
		return nil, 0, &errs.FrameTooShort{Expected: 1, Actual: len(buf)}
	}
	t := Type(buf[0])
	b := buf[1:]
	f := &Frame{Type: t}

	need := func(n int) error {
		if len(b) < n {
			return &errs.FrameTooShort{Expected: 1 + n, Actual: len(buf)}
		}
		return nil
	}

	switch t {
	case TypeData:
		if err := need(13); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		f.Seq = binary.BigEndian.Uint32(b[4:8])
		f.Flags = DataFlag(b[8])
		plen := binary.BigEndian.Uint32(b[9:13])
		if len(b[13:]) < int(plen) {
			return nil, 0, &errs.FrameTooShort{Expected: 13 + int(plen), Actual: len(b)}
		}
		f.Payload = append([]byte(nil), b[13:13+plen]...)
		return f, 1 + 13 + int(plen), nil

	case TypeAck:
		if err := need(10); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		f.AckSeq = binary.BigEndian.Uint32(b[4:8])
		count := int(binary.BigEndian.Uint16(b[8:10]))
		if err := need(10 + 8*count); err != nil {
			return nil, 0, err
		}
		f.Ranges = getRanges(b[10:], count)
		return f, 1 + 10 + 8*count, nil

	case TypeNack:
		if err := need(6); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		count := int(binary.BigEndian.Uint16(b[4:6]))
		if err := need(6 + 8*count); err != nil {
			return nil, 0, err
		}
		f.Ranges = getRanges(b[6:], count)
		return f, 1 + 6 + 8*count, nil

	case TypeFin:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		return f, 1 + 4, nil

	case TypeRst:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		f.ErrorCode = binary.BigEndian.Uint32(b[4:8])
		return f, 1 + 8, nil

	case TypePing, TypePong:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		f.PingID = binary.BigEndian.Uint64(b[0:8])
		return f, 1 + 8, nil

	case TypeWindowUpdate:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		f.Increment = binary.BigEndian.Uint32(b[4:8])
		return f, 1 + 8, nil

	case TypeStreamOpen:
		if err := need(5); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		f.Mode = b[4]
		return f, 1 + 5, nil

	case TypeStreamAck, TypeStreamClose:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		return f, 1 + 4, nil

	case TypeStreamReset:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		f.ErrorCode = binary.BigEndian.Uint32(b[4:8])
		return f, 1 + 8, nil

	case TypeCongestion:
		if err := need(12); err != nil {
			return nil, 0, err
		}
		f.StreamID = binary.BigEndian.Uint32(b[0:4])
		f.Cwnd = binary.BigEndian.Uint32(b[4:8])
		f.RttUs = binary.BigEndian.Uint32(b[8:12])
		return f, 1 + 12, nil

	default:
		return nil, 0, &errs.UnknownFrameType{Byte: byte(t)}
	}
}
