package conn

import (
	"testing"
	"time"

	"github.com/katzenpost/strand/frame"
	"github.com/katzenpost/strand/mode"
	"github.com/stretchr/testify/require"
)

func openConn(t *testing.T) *Connection {
	t.Helper()
	c := New(16, DefaultConnectionWindow, DefaultStreamWindow)
	require.NoError(t, c.Connect())
	require.NoError(t, c.OnHandshakeComplete())
	require.Equal(t, StateOpen, c.State())
	return c
}

func TestLifecycleTransitions(t *testing.T) {
	c := New(16, DefaultConnectionWindow, DefaultStreamWindow)
	require.Equal(t, StateIdle, c.State())
	require.Error(t, c.OnHandshakeComplete())
	require.NoError(t, c.Connect())
	require.NoError(t, c.OnHandshakeComplete())
	require.NoError(t, c.Close())
	require.NoError(t, c.FinalizeClose())
	require.Equal(t, StateClosed, c.State())
}

func TestSendDrainRoundTripReliableOrdered(t *testing.T) {
	c := openConn(t)
	s, err := c.OpenStream(mode.ReliableOrdered)
	require.NoError(t, err)

	require.NoError(t, c.Send(s.ID, []byte("hello"), frame.FlagNone))
	now := time.Unix(1000, 0)
	frames := c.Drain(now)
	require.Len(t, frames, 1)
	require.Equal(t, frame.TypeData, frames[0].Type)
	require.Equal(t, []byte("hello"), frames[0].Payload)

	ack := &frame.Frame{Type: frame.TypeAck, StreamID: s.ID, AckSeq: frames[0].Seq}
	require.NoError(t, c.Poll(ack, now))
	require.Equal(t, 0, c.Retransmit.InflightBytes())
}

func TestRetransmitOnRTOExpiry(t *testing.T) {
	c := openConn(t)
	s, err := c.OpenStream(mode.ReliableOrdered)
	require.NoError(t, err)

	require.NoError(t, c.Send(s.ID, []byte("data"), frame.FlagNone))
	start := time.Unix(2000, 0)
	c.Drain(start)

	later := start.Add(2 * time.Minute)
	resent, givenUp := c.Tick(later)
	require.Len(t, resent, 1)
	require.Equal(t, []byte("data"), resent[0].Payload)
	require.Empty(t, givenUp)
}

func TestGivenUpAfterMaxRetries(t *testing.T) {
	c := openConn(t)
	s, err := c.OpenStream(mode.ReliableOrdered)
	require.NoError(t, err)

	require.NoError(t, c.Send(s.ID, []byte("x"), frame.FlagNone))
	now := time.Unix(3000, 0)
	c.Drain(now)

	for i := 0; i < 4; i++ {
		now = now.Add(2 * time.Minute)
		_, givenUp := c.Tick(now)
		if len(givenUp) > 0 {
			return
		}
	}
	t.Fatal("expected packet to be given up on after repeated RTO expiry")
}

func TestPingPongProducesRTTSample(t *testing.T) {
	c := openConn(t)
	start := time.Unix(5000, 0)
	ping := c.SendPing(start)

	later := start.Add(40 * time.Millisecond)
	pong := &frame.Frame{Type: frame.TypePong, PingID: ping.PingID}
	require.NoError(t, c.Poll(pong, later))
	require.Equal(t, 40*time.Millisecond, c.RTT.SRTT())
}

func TestInboundPingProducesOutboundPong(t *testing.T) {
	c := openConn(t)
	now := time.Unix(6000, 0)
	require.NoError(t, c.Poll(&frame.Frame{Type: frame.TypePing, PingID: 42}, now))

	frames := c.Drain(now)
	require.Len(t, frames, 1)
	require.Equal(t, frame.TypePong, frames[0].Type)
	require.Equal(t, uint64(42), frames[0].PingID)
}

func TestWindowUpdateConnectionSentinel(t *testing.T) {
	c := openConn(t)
	s, err := c.OpenStream(mode.BestEffort)
	require.NoError(t, err)
	require.NoError(t, c.Poll(&frame.Frame{Type: frame.TypeWindowUpdate, StreamID: 0, Increment: 1024}, time.Unix(0, 0)))
	require.NoError(t, c.Poll(&frame.Frame{Type: frame.TypeWindowUpdate, StreamID: s.ID, Increment: 512}, time.Unix(0, 0)))
}

func TestCongestionFrameRejectsNonZeroStreamID(t *testing.T) {
	c := openConn(t)
	err := c.Poll(&frame.Frame{Type: frame.TypeCongestion, StreamID: 7, Cwnd: 1000, RttUs: 1000}, time.Unix(0, 0))
	require.Error(t, err)
}

func TestCongestionFrameRecordsPeerAdvisory(t *testing.T) {
	c := openConn(t)
	err := c.Poll(&frame.Frame{Type: frame.TypeCongestion, StreamID: 0, Cwnd: 5000, RttUs: 12000}, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, uint32(5000), c.PeerCwnd)
	require.Equal(t, uint32(12000), c.PeerRTTUs)
}

func TestStreamOpenFromPeerRepliesWithStreamAck(t *testing.T) {
	c := openConn(t)
	now := time.Unix(0, 0)
	require.NoError(t, c.Poll(&frame.Frame{Type: frame.TypeStreamOpen, StreamID: 2, Mode: byte(mode.ReliableOrdered)}, now))

	frames := c.Drain(now)
	require.Len(t, frames, 1)
	require.Equal(t, frame.TypeStreamAck, frames[0].Type)
	require.Equal(t, uint32(2), frames[0].StreamID)

	_, err := c.Mux.Get(2)
	require.NoError(t, err)
}

func TestStreamResetRemovesStreamAndFlowWindow(t *testing.T) {
	c := openConn(t)
	s, err := c.OpenStream(mode.ReliableOrdered)
	require.NoError(t, err)

	require.NoError(t, c.Poll(&frame.Frame{Type: frame.TypeStreamReset, StreamID: s.ID, ErrorCode: 1}, time.Unix(0, 0)))
	_, err = c.Mux.Get(s.ID)
	require.Error(t, err)
	require.Equal(t, int64(0), c.Flow.Available(s.ID))
}

func TestSendRejectedWhenConnectionNotOpen(t *testing.T) {
	c := New(16, DefaultConnectionWindow, DefaultStreamWindow)
	err := c.Send(1, []byte("x"), frame.FlagNone)
	require.Error(t, err)
}

func TestBestEffortDropsWhenCongestionWindowClosed(t *testing.T) {
	c := openConn(t)
	s, err := c.OpenStream(mode.BestEffort)
	require.NoError(t, err)
	c.congestionGate = 0

	require.NoError(t, c.Send(s.ID, []byte("fire and forget"), frame.FlagNone))
	frames := c.Drain(time.Unix(0, 0))
	require.Empty(t, frames)
}
