package congestion

import "time"

const (
	minRTO = 200 * time.Millisecond
	maxRTO = 60 * time.Second
)

// RTTEstimator implements the Jacobson/Karels SRTT/RTTVAR estimator (spec
// §4.2). No sample is taken for a retransmitted segment — Karn's rule is
// left to the caller, which simply never calls Sample for a retransmit.
type RTTEstimator struct {
	srtt    time.Duration
	rttvar  time.Duration
	rto     time.Duration
	primed  bool
}

// NewRTTEstimator returns an estimator whose RTO starts at the clamp floor
// until the first sample arrives.
func NewRTTEstimator() *RTTEstimator {
	return &RTTEstimator{rto: minRTO}
}

// Sample feeds a new RTT observation into the estimator.
func (e *RTTEstimator) Sample(sample time.Duration) {
	if !e.primed {
		e.srtt = sample
		e.rttvar = sample / 2
		e.primed = true
	} else {
		diff := e.srtt - sample
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = e.rttvar*3/4 + diff/4
		e.srtt = e.srtt*7/8 + sample/8
	}
	e.recompute()
}

func (e *RTTEstimator) recompute() {
	floor := time.Millisecond
	v := 4 * e.rttvar
	if v < floor {
		v = floor
	}
	rto := e.srtt + v
	e.rto = clampRTO(rto)
}

func clampRTO(d time.Duration) time.Duration {
	if d < minRTO {
		return minRTO
	}
	if d > maxRTO {
		return maxRTO
	}
	return d
}

// RTO returns the current retransmission timeout, always within
// [200ms, 60s].
func (e *RTTEstimator) RTO() time.Duration {
	return e.rto
}

// SRTT returns the current smoothed RTT, zero if no sample has ever been
// taken.
func (e *RTTEstimator) SRTT() time.Duration {
	return e.srtt
}
