package mux

import (
	"testing"

	"github.com/katzenpost/strand/errs"
	"github.com/katzenpost/strand/frame"
	"github.com/katzenpost/strand/mode"
	"github.com/stretchr/testify/require"
)

func TestCreateStreamAllocatesOddMonotonicIDs(t *testing.T) {
	m := New(DefaultMaxStreams)
	s1, err := m.CreateStream(mode.ReliableOrdered)
	require.NoError(t, err)
	require.Equal(t, uint32(1), s1.ID)

	s2, err := m.CreateStream(mode.ReliableOrdered)
	require.NoError(t, err)
	require.Equal(t, uint32(3), s2.ID)
}

func TestMaxStreamsExceeded(t *testing.T) {
	m := New(1)
	_, err := m.CreateStream(mode.BestEffort)
	require.NoError(t, err)
	_, err = m.CreateStream(mode.BestEffort)
	require.Error(t, err)
	var mse *errs.MaxStreamsExceeded
	require.ErrorAs(t, err, &mse)
}

func TestReservedStreamIdRejectedAtDispatch(t *testing.T) {
	m := New(DefaultMaxStreams)
	err := m.Poll(&frame.Frame{Type: frame.TypeData, StreamID: ReservedZero})
	require.Error(t, err)
	var isid *errs.InvalidStreamId
	require.ErrorAs(t, err, &isid)

	err = m.Poll(&frame.Frame{Type: frame.TypeData, StreamID: ReservedMax})
	require.Error(t, err)
	require.ErrorAs(t, err, &isid)
}

func TestPollDispatchesFinAndRst(t *testing.T) {
	m := New(DefaultMaxStreams)
	s, err := m.CreateStream(mode.BestEffort)
	require.NoError(t, err)

	require.NoError(t, m.Poll(&frame.Frame{Type: frame.TypeFin, StreamID: s.ID}))
	st, _ := m.Get(s.ID)
	require.NotNil(t, st)

	require.NoError(t, m.Poll(&frame.Frame{Type: frame.TypeRst, StreamID: s.ID}))
	_, err = m.Get(s.ID)
	require.Error(t, err)
}

func TestPollDataNotFound(t *testing.T) {
	m := New(DefaultMaxStreams)
	err := m.Poll(&frame.Frame{Type: frame.TypeData, StreamID: 999})
	require.Error(t, err)
	var snf *errs.StreamNotFound
	require.ErrorAs(t, err, &snf)
}

func TestReapClosed(t *testing.T) {
	m := New(DefaultMaxStreams)
	s, err := m.CreateStream(mode.BestEffort)
	require.NoError(t, err)
	s.RemoteClose()
	require.NoError(t, s.Close())

	n := m.ReapClosed()
	require.Equal(t, 1, n)
	_, err = m.Get(s.ID)
	require.Error(t, err)
}
