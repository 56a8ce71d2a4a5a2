package congestion

import "time"

// sentPacket is a unit of bookkeeping in the loss detector's pending map.
type sentPacket struct {
	sentAt time.Time
}

// LossDetector implements packet-threshold and time-threshold loss
// declaration. It is not safe for concurrent use; the core is
// single-threaded and cooperative.
type LossDetector struct {
	pending      map[uint64]sentPacket
	largestAcked int64 // -1 means "none yet"
}

// NewLossDetector returns an empty detector.
func NewLossDetector() *LossDetector {
	return &LossDetector{
		pending:      make(map[uint64]sentPacket),
		largestAcked: -1,
	}
}

// OnSent records that seq was sent at sentAt.
func (d *LossDetector) OnSent(seq uint64, sentAt time.Time) {
	d.pending[seq] = sentPacket{sentAt: sentAt}
}

// OnAck removes seq from the pending set and advances largestAcked.
func (d *LossDetector) OnAck(seq uint64) {
	delete(d.pending, seq)
	if int64(seq) > d.largestAcked {
		d.largestAcked = int64(seq)
	}
}

// DetectLost returns the batch of seqs that must now be declared lost,
// using one snapshot of largestAcked and now for every determination in
// this call. Declared-lost seqs are
// removed from the pending map.
func (d *LossDetector) DetectLost(now time.Time, srtt time.Duration) []uint64 {
	threshold := srtt * 9 / 8
	if threshold < time.Millisecond {
		threshold = time.Millisecond
	}
	largestAcked := d.largestAcked

	var lost []uint64
	for seq, pkt := range d.pending {
		packetThreshold := largestAcked >= int64(seq)+3
		timeThreshold := now.Sub(pkt.sentAt) > threshold
		if packetThreshold || timeThreshold {
			lost = append(lost, seq)
		}
	}
	for _, seq := range lost {
		delete(d.pending, seq)
	}
	return lost
}

// Pending reports whether seq is still outstanding (sent, neither acked
// nor declared lost).
func (d *LossDetector) Pending(seq uint64) bool {
	_, ok := d.pending[seq]
	return ok
}
