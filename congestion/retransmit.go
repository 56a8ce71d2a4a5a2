package congestion

import (
	"container/heap"
	"time"

	"github.com/katzenpost/strand/errs"
)

// MaxRetries is the number of retransmit attempts before a packet is given
// up on.
const MaxRetries = 3

// DefaultMaxInflightBytes bounds the retransmission scheduler's pending
// payload bytes.
const DefaultMaxInflightBytes = 64 << 20

// pendingEntry is the scheduler's source of truth for a seq that is still
// awaiting acknowledgement.
type pendingEntry struct {
	payload  []byte
	rto      time.Duration
	attempts int
}

// heapEntry is a min-heap item ordered by retransmitAt. Stale entries
// (belonging to a seq no longer in pending) are left in place and skipped
// when popped: this keeps push O(log n) and on_ack O(1) instead of needing
// heap-erase. Pushing a seq that is still pending does not make its older
// heap entry stale; both entries are acted upon.
type heapEntry struct {
	seq          uint64
	retransmitAt time.Time
	index        int
}

type retransmitHeap []*heapEntry

func (h retransmitHeap) Len() int { return len(h) }
func (h retransmitHeap) Less(i, j int) bool {
	return h[i].retransmitAt.Before(h[j].retransmitAt)
}
func (h retransmitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *retransmitHeap) Push(x interface{}) {
	e := x.(*heapEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *retransmitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// RetransmittedPacket is one packet poll_expired decided to retransmit.
type RetransmittedPacket struct {
	Seq     uint64
	Payload []byte
}

// GivenUpPacket is one packet that exhausted MaxRetries.
type GivenUpPacket struct {
	Seq uint64
}

// Scheduler is the min-heap-backed retransmission scheduler.
// Not safe for concurrent use.
type Scheduler struct {
	heap          retransmitHeap
	pending       map[uint64]*pendingEntry
	inflightBytes int
	maxBytes      int
}

// NewScheduler returns a scheduler bounded by maxBytes of inflight payload
// (use DefaultMaxInflightBytes if unsure).
func NewScheduler(maxBytes int) *Scheduler {
	return &Scheduler{
		pending:  make(map[uint64]*pendingEntry),
		maxBytes: maxBytes,
	}
}

// InflightBytes returns the current sum of pending payload sizes.
func (s *Scheduler) InflightBytes() int { return s.inflightBytes }

// Push registers seq as sent with the given payload, to be retransmitted
// at now+initialRTO if not acknowledged first.
func (s *Scheduler) Push(now time.Time, seq uint64, payload []byte, initialRTO time.Duration) error {
	if s.inflightBytes+len(payload) > s.maxBytes {
		return &errs.RetransmitBufferFull{Inflight: s.inflightBytes, Max: s.maxBytes}
	}
	s.pending[seq] = &pendingEntry{payload: payload, rto: initialRTO}
	s.inflightBytes += len(payload)
	heap.Push(&s.heap, &heapEntry{seq: seq, retransmitAt: now.Add(initialRTO)})
	return nil
}

// OnAck removes seq from the pending set; any heap entry for it becomes
// stale and is skipped at pop time.
func (s *Scheduler) OnAck(seq uint64) {
	e, ok := s.pending[seq]
	if !ok {
		return
	}
	s.inflightBytes -= len(e.payload)
	if s.inflightBytes < 0 {
		s.inflightBytes = 0
	}
	delete(s.pending, seq)
}

// PollExpired pops every heap entry whose retransmitAt <= now, skipping
// stale ones, and returns the packets to retransmit plus any packets that
// have now exhausted MaxRetries and are given up on.
func (s *Scheduler) PollExpired(now time.Time) (retransmit []RetransmittedPacket, givenUp []GivenUpPacket) {
	for s.heap.Len() > 0 {
		top := s.heap[0]
		if top.retransmitAt.After(now) {
			break
		}
		heap.Pop(&s.heap)

		entry, ok := s.pending[top.seq]
		if !ok {
			// stale: acked or already given up
			continue
		}

		if entry.attempts >= MaxRetries {
			s.inflightBytes -= len(entry.payload)
			if s.inflightBytes < 0 {
				s.inflightBytes = 0
			}
			delete(s.pending, top.seq)
			givenUp = append(givenUp, GivenUpPacket{Seq: top.seq})
			continue
		}

		retransmit = append(retransmit, RetransmittedPacket{Seq: top.seq, Payload: entry.payload})
		entry.rto *= 2
		entry.attempts++
		heap.Push(&s.heap, &heapEntry{seq: top.seq, retransmitAt: now.Add(entry.rto)})
	}
	return retransmit, givenUp
}
