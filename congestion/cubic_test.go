package congestion

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCubicBoundsHold(t *testing.T) {
	c := NewCubic()
	now := time.Unix(0, 0)
	for i := 0; i < 1000; i++ {
		c.OnPacketSent(MSS)
		now = now.Add(time.Millisecond)
		c.OnAck(MSS, now)
		require.GreaterOrEqual(t, c.Cwnd(), int64(MinWindow))
		require.LessOrEqual(t, c.Cwnd(), int64(MaxCwnd))
		require.GreaterOrEqual(t, c.InFlight(), int64(0))
		if i%7 == 0 {
			c.OnLoss(MSS)
			require.GreaterOrEqual(t, c.Cwnd(), int64(MinWindow))
			require.GreaterOrEqual(t, c.InFlight(), int64(0))
		}
	}
}

func TestCubicLossMath(t *testing.T) {
	c := NewCubic()
	now := time.Unix(0, 0)
	for i := 0; i < 100; i++ {
		c.OnPacketSent(MSS)
		now = now.Add(time.Millisecond)
		c.OnAck(MSS, now)
	}
	w := c.Cwnd()
	c.OnLoss(MSS)

	expected := int64(math.Floor(float64(w) * cubicBeta))
	if expected < MinWindow {
		expected = MinWindow
	}
	require.Equal(t, expected, c.Cwnd())
	require.Equal(t, c.Cwnd(), int64(c.ssthresh))
}

func TestCanSend(t *testing.T) {
	c := NewCubic()
	require.True(t, c.CanSend(InitialWindow))
	c.OnPacketSent(InitialWindow)
	require.False(t, c.CanSend(1))
}
