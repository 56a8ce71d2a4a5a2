// Package mode implements the four per-stream delivery disciplines:
// Reliable-Ordered, Reliable-Unordered, Best-Effort, Probabilistic.
// Dispatch is a tagged sum type with a single inline switch on every
// call, avoiding virtual calls or heap-allocated interface values on
// the hot path — Sender and Receiver below are plain structs with a Mode
// tag, not interfaces.
package mode

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"sort"

	"github.com/katzenpost/strand/errs"
	"github.com/katzenpost/strand/frame"
)

// Mode is the wire-level transport mode tag.
type Mode byte

const (
	ReliableOrdered   Mode = 0x01
	ReliableUnordered Mode = 0x02
	BestEffort        Mode = 0x03
	Probabilistic     Mode = 0x04
)

// DeliveredGCThreshold and DeliveredGCDiscard bound the RU receiver's
// delivered-seq set.
const (
	DeliveredGCThreshold = 1024
	DeliveredGCDiscard   = 512
)

// Sender assigns per-stream sequence numbers monotonically (u32 wrap) and
// applies mode-specific retransmit bookkeeping.
type Sender struct {
	mode     Mode
	streamID uint32
	nextSeq  uint32

	// RO/RU retransmit store: seq -> outstanding frame, in send order.
	order   []uint32
	pending map[uint32]*frame.Frame

	// BE/PR: optional congestion window gate; nil means unconstrained.
	cwnd *int
}

// NewSender constructs a sender for the given mode and stream.
func NewSender(m Mode, streamID uint32) *Sender {
	return &Sender{
		mode:     m,
		streamID: streamID,
		pending:  make(map[uint32]*frame.Frame),
	}
}

// SetCongestionWindow installs (or clears, with nil) a BE/PR congestion
// gate. A zero-valued cwnd causes Send to drop the frame.
func (s *Sender) SetCongestionWindow(cwnd *int) {
	s.cwnd = cwnd
}

// Send produces the next DATA frame for payload, or (nil, nil) if the
// frame was intentionally dropped (BE or PR mode with a closed congestion
// window — not an error).
func (s *Sender) Send(payload []byte, flags frame.DataFlag) (*frame.Frame, error) {
	switch s.mode {
	case ReliableOrdered, ReliableUnordered:
		f := &frame.Frame{Type: frame.TypeData, StreamID: s.streamID, Seq: s.nextSeq, Flags: flags, Payload: payload}
		s.pending[s.nextSeq] = f
		s.order = append(s.order, s.nextSeq)
		s.nextSeq++
		return f, nil
	case BestEffort, Probabilistic:
		if s.cwnd != nil && *s.cwnd == 0 {
			// fire-and-forget contract: dropped, not an error.
			return nil, nil
		}
		f := &frame.Frame{Type: frame.TypeData, StreamID: s.streamID, Seq: s.nextSeq, Flags: flags, Payload: payload}
		s.nextSeq++
		return f, nil
	default:
		return nil, errs.ErrInternal
	}
}

// OnAck removes seq from the RO/RU retransmit store. No-op for BE/PR.
func (s *Sender) OnAck(seq uint32) {
	if s.mode != ReliableOrdered && s.mode != ReliableUnordered {
		return
	}
	delete(s.pending, seq)
	for i, sq := range s.order {
		if sq == seq {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Retransmit returns every remaining unacknowledged frame, in original
// send order. No-op (empty) for BE/PR.
func (s *Sender) Retransmit() []*frame.Frame {
	if s.mode != ReliableOrdered && s.mode != ReliableUnordered {
		return nil
	}
	out := make([]*frame.Frame, 0, len(s.order))
	for _, seq := range s.order {
		out = append(out, s.pending[seq])
	}
	return out
}

// Receiver applies a mode's delivery discipline to inbound DATA frames.
type Receiver struct {
	mode Mode

	// RO
	expectedSeq uint32
	buffered    map[uint32][]byte

	// RU
	delivered map[uint32]struct{}

	// PR
	probability float64
	rng         *mathrand.Rand
}

// cryptoSeed draws a fresh int64 seed from the OS cryptographic RNG. A
// deterministic PRNG must never be reused across connections, so every
// Probabilistic receiver that isn't handed an explicit rng gets its own
// seed drawn here rather than a fixed constant.
func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		panic(err)
	}
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// NewReceiver constructs a receiver for the given mode. probability and
// rng are only meaningful for Probabilistic; a nil rng is seeded from
// crypto/rand rather than defaulting to a fixed seed.
func NewReceiver(m Mode, probability float64, rng *mathrand.Rand) *Receiver {
	if rng == nil {
		rng = mathrand.New(mathrand.NewSource(cryptoSeed()))
	}
	return &Receiver{
		mode:        m,
		buffered:    make(map[uint32][]byte),
		delivered:   make(map[uint32]struct{}),
		probability: probability,
		rng:         rng,
	}
}

// Deliver applies f's mode discipline and returns the payloads to hand to
// the application, in delivery order. An empty, nil-error slice is a
// normal outcome (duplicate suppressed, probabilistic drop, or nothing new
// became contiguous yet).
func (r *Receiver) Deliver(f *frame.Frame) ([][]byte, error) {
	if f.Type != frame.TypeData {
		return nil, errs.ErrInternal
	}
	switch r.mode {
	case ReliableOrdered:
		return r.deliverRO(f), nil
	case ReliableUnordered:
		return r.deliverRU(f), nil
	case BestEffort:
		return [][]byte{f.Payload}, nil
	case Probabilistic:
		if r.rng.Float64() < r.probability {
			return [][]byte{f.Payload}, nil
		}
		return nil, nil
	default:
		return nil, errs.ErrInternal
	}
}

func (r *Receiver) deliverRO(f *frame.Frame) [][]byte {
	// Duplicate: already delivered (seq < expected) or already buffered.
	if f.Seq < r.expectedSeq {
		return nil
	}
	if _, ok := r.buffered[f.Seq]; ok {
		return nil
	}
	r.buffered[f.Seq] = f.Payload

	var out [][]byte
	for {
		payload, ok := r.buffered[r.expectedSeq]
		if !ok {
			break
		}
		out = append(out, payload)
		delete(r.buffered, r.expectedSeq)
		r.expectedSeq++
	}
	return out
}

func (r *Receiver) deliverRU(f *frame.Frame) [][]byte {
	if _, ok := r.delivered[f.Seq]; ok {
		return nil
	}
	r.delivered[f.Seq] = struct{}{}

	if len(r.delivered) >= DeliveredGCThreshold {
		live := make([]uint32, 0, len(r.delivered))
		for seq := range r.delivered {
			live = append(live, seq)
		}
		sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
		for _, seq := range live[:DeliveredGCDiscard] {
			delete(r.delivered, seq)
		}
	}
	return [][]byte{f.Payload}
}
