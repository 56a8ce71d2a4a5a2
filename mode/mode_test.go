package mode

import (
	"math/rand"
	"testing"

	"github.com/katzenpost/strand/frame"
	"github.com/stretchr/testify/require"
)

func dataFrame(seq uint32, payload string) *frame.Frame {
	return &frame.Frame{Type: frame.TypeData, StreamID: 1, Seq: seq, Payload: []byte(payload)}
}

func TestROReassemblyOutOfOrder(t *testing.T) {
	sender := NewSender(ReliableOrdered, 1)
	frames := make([]*frame.Frame, 5)
	for i, p := range []string{"A", "B", "C", "D", "E"} {
		f, err := sender.Send([]byte(p), frame.FlagNone)
		require.NoError(t, err)
		frames[i] = f
	}

	recv := NewReceiver(ReliableOrdered, 0, nil)
	order := []int{4, 2, 3, 1, 0}
	var lastOut [][]byte
	for i, idx := range order {
		out, err := recv.Deliver(frames[idx])
		require.NoError(t, err)
		if i < 4 {
			require.Empty(t, out)
		} else {
			lastOut = out
		}
	}
	require.Equal(t, [][]byte{[]byte("A"), []byte("B"), []byte("C"), []byte("D"), []byte("E")}, lastOut)
}

func TestRODuplicateIsIdempotent(t *testing.T) {
	recv := NewReceiver(ReliableOrdered, 0, nil)
	f := dataFrame(0, "A")
	out1, err := recv.Deliver(f)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("A")}, out1)

	out2, err := recv.Deliver(f)
	require.NoError(t, err)
	require.Empty(t, out2)
}

func TestRUDedup(t *testing.T) {
	recv := NewReceiver(ReliableUnordered, 0, nil)
	f := dataFrame(0, "X")

	out1, _ := recv.Deliver(f)
	require.Equal(t, [][]byte{[]byte("X")}, out1)
	out2, _ := recv.Deliver(f)
	require.Empty(t, out2)
	out3, _ := recv.Deliver(f)
	require.Empty(t, out3)
}

func TestRUGarbageCollection(t *testing.T) {
	recv := NewReceiver(ReliableUnordered, 0, nil)
	for i := uint32(0); i < DeliveredGCThreshold; i++ {
		_, err := recv.Deliver(dataFrame(i, "x"))
		require.NoError(t, err)
	}
	require.Len(t, recv.delivered, DeliveredGCThreshold-DeliveredGCDiscard)

	// A late duplicate of a discarded seq is redelivered.
	out, err := recv.Deliver(dataFrame(0, "x"))
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestBestEffortDropsOnClosedWindow(t *testing.T) {
	sender := NewSender(BestEffort, 1)
	zero := 0
	sender.SetCongestionWindow(&zero)
	f, err := sender.Send([]byte("x"), frame.FlagNone)
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestBestEffortReceiverDeliversUnconditionally(t *testing.T) {
	recv := NewReceiver(BestEffort, 0, nil)
	out, err := recv.Deliver(dataFrame(0, "x"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("x")}, out)
}

func TestProbabilisticDelivery(t *testing.T) {
	recv := NewReceiver(Probabilistic, 1.0, rand.New(rand.NewSource(1)))
	out, err := recv.Deliver(dataFrame(0, "x"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("x")}, out)

	recv2 := NewReceiver(Probabilistic, 0.0, rand.New(rand.NewSource(1)))
	out2, err := recv2.Deliver(dataFrame(0, "x"))
	require.NoError(t, err)
	require.Empty(t, out2)
}

func TestProbabilisticReceiverRejectsNonData(t *testing.T) {
	recv := NewReceiver(Probabilistic, 1.0, nil)
	_, err := recv.Deliver(&frame.Frame{Type: frame.TypeFin, StreamID: 1})
	require.Error(t, err)
}
