package streamstate

import (
	"testing"

	"github.com/katzenpost/strand/errs"
	"github.com/katzenpost/strand/frame"
	"github.com/katzenpost/strand/mode"
	"github.com/stretchr/testify/require"
)

func TestLifecycleTransitions(t *testing.T) {
	s := New(1, mode.ReliableOrdered)
	require.Equal(t, Idle, s.State())

	require.NoError(t, s.Open())
	require.Equal(t, Open, s.State())

	require.NoError(t, s.Close())
	require.Equal(t, HalfClosedLocal, s.State())

	// idempotent
	require.NoError(t, s.Close())
	require.Equal(t, HalfClosedLocal, s.State())
}

func TestOpenFromNonIdleFails(t *testing.T) {
	s := New(1, mode.BestEffort)
	require.NoError(t, s.Open())
	err := s.Open()
	require.Error(t, err)
	var ist *errs.InvalidStateTransition
	require.ErrorAs(t, err, &ist)
}

func TestRemoteCloseThenLocalCloseReachesClosed(t *testing.T) {
	s := New(1, mode.BestEffort)
	require.NoError(t, s.Open())
	s.RemoteClose()
	require.Equal(t, HalfClosedRemote, s.State())
	require.NoError(t, s.Close())
	require.Equal(t, Closed, s.State())
}

func TestSendForbiddenWhenHalfClosedLocal(t *testing.T) {
	s := New(1, mode.BestEffort)
	require.NoError(t, s.Open())
	require.NoError(t, s.Close())
	err := s.Send([]byte("x"), frame.FlagNone)
	require.Error(t, err)
}

func TestRecvDrainsThenReportsClosed(t *testing.T) {
	s := New(1, mode.BestEffort)
	require.NoError(t, s.Open())
	require.NoError(t, s.DeliverData(&frame.Frame{Type: frame.TypeData, StreamID: 1, Payload: []byte("x")}))
	s.RemoteClose()
	require.NoError(t, s.Close())
	require.Equal(t, Closed, s.State())

	data, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("x"), data)

	_, err = s.Recv()
	require.Error(t, err)
	var sc *errs.StreamClosed
	require.ErrorAs(t, err, &sc)
}

func TestResetClearsBuffers(t *testing.T) {
	s := New(1, mode.ReliableOrdered)
	require.NoError(t, s.Open())
	require.NoError(t, s.Send([]byte("x"), frame.FlagNone))
	require.NotEmpty(t, s.Pending())
	require.NoError(t, s.Send([]byte("y"), frame.FlagNone))
	s.Reset()
	require.Equal(t, Closed, s.State())
	require.Empty(t, s.Pending())
}
