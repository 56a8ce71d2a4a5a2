package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, f *Frame) {
	t.Helper()
	buf, err := Encode(f)
	require.NoError(t, err)
	require.Equal(t, EncodedLen(f), len(buf))

	got, n, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, f.Type, got.Type)
	require.Equal(t, f.StreamID, got.StreamID)

	switch f.Type {
	case TypeData:
		require.Equal(t, f.Seq, got.Seq)
		require.Equal(t, f.Flags, got.Flags)
		require.Equal(t, f.Payload, got.Payload)
	case TypeAck:
		require.Equal(t, f.AckSeq, got.AckSeq)
		require.Equal(t, f.Ranges, got.Ranges)
	case TypeNack:
		require.Equal(t, f.Ranges, got.Ranges)
	case TypeRst, TypeStreamReset:
		require.Equal(t, f.ErrorCode, got.ErrorCode)
	case TypePing, TypePong:
		require.Equal(t, f.PingID, got.PingID)
	case TypeWindowUpdate:
		require.Equal(t, f.Increment, got.Increment)
	case TypeStreamOpen:
		require.Equal(t, f.Mode, got.Mode)
	case TypeCongestion:
		require.Equal(t, f.Cwnd, got.Cwnd)
		require.Equal(t, f.RttUs, got.RttUs)
	}
}

func TestRoundTripAllVariants(t *testing.T) {
	cases := []*Frame{
		{Type: TypeData, StreamID: 42, Seq: 7, Flags: FlagNone, Payload: []byte("hello world")},
		{Type: TypeData, StreamID: 1, Seq: 0, Flags: FlagFin, Payload: nil},
		{Type: TypeAck, StreamID: 3, AckSeq: 9, Ranges: []Range{{Start: 1, End: 2}, {Start: 5, End: 9}}},
		{Type: TypeAck, StreamID: 3, AckSeq: 9, Ranges: nil},
		{Type: TypeNack, StreamID: 3, Ranges: []Range{{Start: 1, End: 2}}},
		{Type: TypeFin, StreamID: 5},
		{Type: TypeRst, StreamID: 5, ErrorCode: 99},
		{Type: TypePing, PingID: 0xdeadbeef},
		{Type: TypePong, PingID: 0xdeadbeef},
		{Type: TypeWindowUpdate, StreamID: 2, Increment: 65536},
		{Type: TypeStreamOpen, StreamID: 3, Mode: 0x01},
		{Type: TypeStreamAck, StreamID: 3},
		{Type: TypeStreamClose, StreamID: 3},
		{Type: TypeStreamReset, StreamID: 3, ErrorCode: 7},
		{Type: TypeCongestion, StreamID: 0, Cwnd: 12000, RttUs: 45000},
	}
	for _, f := range cases {
		roundTrip(t, f)
	}
}

func TestDataFrameExactLayout(t *testing.T) {
	f := &Frame{Type: TypeData, StreamID: 42, Seq: 7, Flags: FlagNone, Payload: []byte("hello world")}
	buf, err := Encode(f)
	require.NoError(t, err)
	require.Equal(t, 1+4+4+1+4+11, len(buf))
	require.Equal(t, byte(0x01), buf[0])

	got, _, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, f.StreamID, got.StreamID)
	require.Equal(t, f.Seq, got.Seq)
	require.Equal(t, f.Flags, got.Flags)
	require.Equal(t, f.Payload, got.Payload)
}

func TestUnknownFrameType(t *testing.T) {
	_, _, err := Decode([]byte{0xAA, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestFrameTooShort(t *testing.T) {
	_, _, err := Decode([]byte{0x01, 0, 0})
	require.Error(t, err)
}

func TestDataDeclaredLengthExceedsBuffer(t *testing.T) {
	buf := []byte{0x01, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 0, 0xFF, 'x'}
	_, _, err := Decode(buf)
	require.Error(t, err)
}
