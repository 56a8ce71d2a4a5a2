package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRTTClamping(t *testing.T) {
	e := NewRTTEstimator()
	require.Equal(t, minRTO, e.RTO())

	e.Sample(1 * time.Millisecond)
	require.GreaterOrEqual(t, e.RTO(), minRTO)
	require.LessOrEqual(t, e.RTO(), maxRTO)

	e.Sample(2 * time.Minute)
	require.LessOrEqual(t, e.RTO(), maxRTO)
}

func TestRTTFirstSampleInitializes(t *testing.T) {
	e := NewRTTEstimator()
	e.Sample(100 * time.Millisecond)
	require.Equal(t, 100*time.Millisecond, e.SRTT())
}

func TestRTTSubsequentSamplesSmooth(t *testing.T) {
	e := NewRTTEstimator()
	e.Sample(100 * time.Millisecond)
	e.Sample(200 * time.Millisecond)
	// srtt := 7/8*100 + 1/8*200 = 112.5ms
	require.InDelta(t, float64(112500*time.Microsecond), float64(e.SRTT()), float64(time.Millisecond))
}
