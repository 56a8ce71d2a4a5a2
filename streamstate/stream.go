// Package streamstate implements the per-stream state machine and the
// Stream type that owns a mode sender/receiver pair and its buffers (spec
// §3, §4.8).
package streamstate

import (
	"github.com/katzenpost/strand/errs"
	"github.com/katzenpost/strand/frame"
	"github.com/katzenpost/strand/mode"
)

// State is a stream's lifecycle state.
type State byte

const (
	Idle State = iota
	Open
	HalfClosedLocal
	HalfClosedRemote
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Open:
		return "Open"
	case HalfClosedLocal:
		return "HalfClosedLocal"
	case HalfClosedRemote:
		return "HalfClosedRemote"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Stream owns one mode sender/receiver pair, the pending-frame queue that
// the multiplexer drains, and the application-facing receive queue.
type Stream struct {
	ID    uint32
	Mode  mode.Mode
	state State

	sender   *mode.Sender
	receiver *mode.Receiver

	pending  []*frame.Frame
	recvQueue [][]byte
}

// New creates an Idle stream. Call Open to begin using it.
func New(id uint32, m mode.Mode) *Stream {
	return &Stream{
		ID:       id,
		Mode:     m,
		state:    Idle,
		sender:   mode.NewSender(m, id),
		receiver: mode.NewReceiver(m, 1.0, nil),
	}
}

// SetProbability configures the Probabilistic receiver's delivery
// probability; a no-op for other modes.
func (s *Stream) SetProbability(p float64) {
	if s.Mode != mode.Probabilistic {
		return
	}
	s.receiver = mode.NewReceiver(s.Mode, p, nil)
}

// SetCongestionWindow installs the connection's shared congestion gate
// into this stream's sender. BE/PR frames are dropped, not queued,
// while the gate reads closed.
func (s *Stream) SetCongestionWindow(cwnd *int) {
	s.sender.SetCongestionWindow(cwnd)
}

// State returns the stream's current lifecycle state.
func (s *Stream) State() State { return s.state }

// Open transitions Idle -> Open.
func (s *Stream) Open() error {
	if s.state != Idle {
		return &errs.InvalidStateTransition{From: s.state.String(), To: Open.String()}
	}
	s.state = Open
	return nil
}

// Close is the local half-close: Open -> HalfClosedLocal,
// HalfClosedRemote -> Closed, idempotent from HalfClosedLocal/Closed,
// and an error from Idle.
func (s *Stream) Close() error {
	switch s.state {
	case Open:
		s.state = HalfClosedLocal
		return nil
	case HalfClosedRemote:
		s.state = Closed
		return nil
	case HalfClosedLocal, Closed:
		return nil
	default:
		return &errs.InvalidStateTransition{From: s.state.String(), To: HalfClosedLocal.String()}
	}
}

// RemoteClose applies the peer's FIN/STREAM_CLOSE: Open ->
// HalfClosedRemote, HalfClosedLocal -> Closed, otherwise ignored.
func (s *Stream) RemoteClose() {
	switch s.state {
	case Open:
		s.state = HalfClosedRemote
	case HalfClosedLocal:
		s.state = Closed
	}
}

// Reset forces Closed from any state and clears all buffers.
func (s *Stream) Reset() {
	s.state = Closed
	s.pending = nil
	s.recvQueue = nil
}

// Send enqueues payload via the stream's mode sender, appending any
// resulting frame to the pending queue the multiplexer drains.
func (s *Stream) Send(payload []byte, flags frame.DataFlag) error {
	switch s.state {
	case Open, HalfClosedRemote:
	case HalfClosedLocal, Closed:
		return &errs.StreamClosed{ID: s.ID}
	default:
		return &errs.InvalidStateTransition{From: s.state.String(), To: "send"}
	}
	f, err := s.sender.Send(payload, flags)
	if err != nil {
		return err
	}
	if f != nil {
		s.pending = append(s.pending, f)
	}
	return nil
}

// Pending returns and clears the queue of frames ready to be drained by
// the multiplexer.
func (s *Stream) Pending() []*frame.Frame {
	p := s.pending
	s.pending = nil
	return p
}

// OnAck notifies the sender that seq has been acknowledged.
func (s *Stream) OnAck(seq uint32) {
	s.sender.OnAck(seq)
}

// Retransmit returns every outstanding unacknowledged frame for RO/RU
// streams.
func (s *Stream) Retransmit() []*frame.Frame {
	return s.sender.Retransmit()
}

// DeliverData runs f through the stream's mode receiver and enqueues any
// resulting application payloads.
func (s *Stream) DeliverData(f *frame.Frame) error {
	out, err := s.receiver.Deliver(f)
	if err != nil {
		return err
	}
	s.recvQueue = append(s.recvQueue, out...)
	return nil
}

// Recv is permitted in {Open, HalfClosedLocal}; in HalfClosedRemote it
// drains remaining buffered data then returns (nil, nil); in Closed it
// drains remaining data then fails with StreamClosed; Idle is an error.
func (s *Stream) Recv() ([]byte, error) {
	switch s.state {
	case Idle:
		return nil, &errs.InvalidStateTransition{From: Idle.String(), To: "recv"}
	case Open, HalfClosedLocal:
		if len(s.recvQueue) == 0 {
			return nil, nil
		}
		return s.pop(), nil
	case HalfClosedRemote:
		if len(s.recvQueue) == 0 {
			return nil, nil
		}
		return s.pop(), nil
	case Closed:
		if len(s.recvQueue) == 0 {
			return nil, &errs.StreamClosed{ID: s.ID}
		}
		return s.pop(), nil
	default:
		return nil, errs.ErrInternal
	}
}

func (s *Stream) pop() []byte {
	v := s.recvQueue[0]
	s.recvQueue = s.recvQueue[1:]
	return v
}
