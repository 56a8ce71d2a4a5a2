// Package conn implements the Connection: the top-level object that owns
// exactly one Multiplexer, one CUBIC controller, one RTT estimator, one
// loss detector, one retransmission scheduler, and one flow control
// controller. Connection is single-threaded and cooperative — every
// method that needs the current time takes it as a parameter; nothing
// here starts a goroutine or a timer.
package conn

import (
	"time"

	"github.com/katzenpost/strand/congestion"
	"github.com/katzenpost/strand/errs"
	"github.com/katzenpost/strand/flowcontrol"
	"github.com/katzenpost/strand/frame"
	"github.com/katzenpost/strand/metrics"
	"github.com/katzenpost/strand/mode"
	"github.com/katzenpost/strand/mux"
	"github.com/katzenpost/strand/streamstate"
)

// State is the connection's lifecycle state.
type State byte

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// DefaultConnectionWindow and DefaultStreamWindow are the flow control
// defaults a Connection is built with unless the caller overrides them.
const (
	DefaultConnectionWindow = 16 << 20
	DefaultStreamWindow     = 1 << 20
)

// Connection is the caller-facing handle onto one multiplexed, congestion
// and flow controlled transport session.
type Connection struct {
	state State

	Mux        *mux.Multiplexer
	Cubic      *congestion.Cubic
	RTT        *congestion.RTTEstimator
	Loss       *congestion.LossDetector
	Retransmit *congestion.Scheduler
	Flow       *flowcontrol.Controller

	congestionGate int // 0 = closed, nonzero = open; shared with every stream's sender

	sentBytes map[uint64]int // composite (streamID,seq) key -> payload size, for acked/lost byte accounting

	nextPingID uint64
	pingSentAt map[uint64]time.Time

	controlPending []*frame.Frame

	// PeerCwnd and PeerRTTUs record the most recent advisory CONGESTION
	// frame from the peer (spec's Open Question 1: congestion state is
	// connection-scoped, carried with the reserved stream id 0 sentinel,
	// and only informational on receipt).
	PeerCwnd  uint32
	PeerRTTUs uint32
}

// New returns an Idle connection with the given stream cap and flow
// control window sizes.
func New(maxStreams uint32, connectionWindow, streamWindow int64) *Connection {
	return &Connection{
		state:          StateIdle,
		Mux:            mux.New(maxStreams),
		Cubic:          congestion.NewCubic(),
		RTT:            congestion.NewRTTEstimator(),
		Loss:           congestion.NewLossDetector(),
		Retransmit:     congestion.NewScheduler(congestion.DefaultMaxInflightBytes),
		Flow:           flowcontrol.NewController(connectionWindow, streamWindow),
		congestionGate: 1,
		sentBytes:      make(map[uint64]int),
		pingSentAt:     make(map[uint64]time.Time),
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State { return c.state }

// Connect transitions Idle -> Connecting, the point at which the caller
// should drive the handshake package.
func (c *Connection) Connect() error {
	if c.state != StateIdle {
		return &errs.InvalidStateTransition{From: c.state.String(), To: StateConnecting.String()}
	}
	c.state = StateConnecting
	return nil
}

// OnHandshakeComplete transitions Connecting -> Open once the caller's
// handshake.Initiator/Responder has reached its Complete state.
func (c *Connection) OnHandshakeComplete() error {
	if c.state != StateConnecting {
		return &errs.InvalidStateTransition{From: c.state.String(), To: StateOpen.String()}
	}
	c.state = StateOpen
	return nil
}

// Close transitions Open -> Closing. Streams already open continue to
// drain; no new stream may be opened.
func (c *Connection) Close() error {
	if c.state != StateOpen {
		return &errs.InvalidStateTransition{From: c.state.String(), To: StateClosing.String()}
	}
	c.state = StateClosing
	return nil
}

// FinalizeClose transitions Closing -> Closed once the caller has
// confirmed every stream has reached Closed.
func (c *Connection) FinalizeClose() error {
	if c.state != StateClosing {
		return &errs.InvalidStateTransition{From: c.state.String(), To: StateClosed.String()}
	}
	c.state = StateClosed
	return nil
}

// refreshGate recomputes the shared BE/PR congestion gate from the
// current CUBIC window: open whenever at least one more MSS-sized frame
// could be sent.
func (c *Connection) refreshGate() {
	if c.Cubic.CanSend(congestion.MSS) {
		c.congestionGate = 1
	} else {
		c.congestionGate = 0
	}
}

func compositeKey(streamID, seq uint32) uint64 {
	return uint64(streamID)<<32 | uint64(seq)
}

func splitKey(key uint64) (streamID, seq uint32) {
	return uint32(key >> 32), uint32(key)
}

// OpenStream allocates a new client-initiated stream, registers it with
// flow control, and wires the connection's shared congestion gate into
// its sender.
func (c *Connection) OpenStream(m mode.Mode) (*streamstate.Stream, error) {
	if c.state != StateOpen {
		return nil, errs.ErrConnectionClosed
	}
	s, err := c.Mux.CreateStream(m)
	if err != nil {
		return nil, err
	}
	c.Flow.AddStream(s.ID)
	s.SetCongestionWindow(&c.congestionGate)
	return s, nil
}

// Send writes payload to streamID, subject to flow control and the
// congestion window. For BE/PR streams a closed congestion window drops
// the frame silently; for RO/RU it blocks the call with
// FlowControlBlocked so the caller can retry later.
func (c *Connection) Send(streamID uint32, payload []byte, flags frame.DataFlag) error {
	if c.state != StateOpen {
		return errs.ErrConnectionClosed
	}
	s, err := c.Mux.Get(streamID)
	if err != nil {
		return err
	}
	n := int64(len(payload))
	if n > int64(frame.MaxPayloadSize) {
		return &errs.PayloadTooLarge{Size: int(n), Max: frame.MaxPayloadSize}
	}
	if err := c.Flow.Consume(streamID, n); err != nil {
		return err
	}
	if (s.Mode == mode.ReliableOrdered || s.Mode == mode.ReliableUnordered) && !c.Cubic.CanSend(n) {
		c.Flow.Release(streamID, n)
		return &errs.FlowControlBlocked{ID: streamID}
	}
	if err := s.Send(payload, flags); err != nil {
		c.Flow.Release(streamID, n)
		return err
	}
	return nil
}

// Drain collects every frame ready to go out — per-stream DATA/control
// frames plus connection-level control frames (PING/PONG/CONGESTION) —
// and registers each DATA frame on RO/RU streams with the congestion and
// loss-detection machinery as sent at now.
func (c *Connection) Drain(now time.Time) []*frame.Frame {
	frames := c.Mux.DrainFrames()
	frames = append(frames, c.controlPending...)
	c.controlPending = nil

	for _, f := range frames {
		metrics.RecordFrame(byte(f.Type), "tx")
		if f.Type != frame.TypeData {
			continue
		}
		n := int64(len(f.Payload))
		s, err := c.Mux.Get(f.StreamID)
		if err != nil {
			continue
		}
		if s.Mode != mode.ReliableOrdered && s.Mode != mode.ReliableUnordered {
			continue
		}
		c.Cubic.OnPacketSent(n)
		key := compositeKey(f.StreamID, f.Seq)
		c.Loss.OnSent(key, now)
		c.sentBytes[key] = int(n)
		// Best-effort: a full retransmit buffer still lets the frame go
		// out, it just won't be proactively retransmitted on RTO.
		_ = c.Retransmit.Push(now, key, f.Payload, c.RTT.RTO())
	}
	c.refreshGate()
	metrics.ObserveWindow(c.Cubic.Cwnd(), c.Cubic.InFlight())
	return frames
}

// Tick advances time-driven bookkeeping: threshold-based loss detection
// and RTO-driven retransmission. It returns the frames that must be
// resent and the streams whose packets have exhausted their retry
// budget.
func (c *Connection) Tick(now time.Time) (retransmitFrames []*frame.Frame, givenUp []error) {
	for _, key := range c.Loss.DetectLost(now, c.RTT.SRTT()) {
		if n, ok := c.sentBytes[key]; ok {
			c.Cubic.OnLoss(int64(n))
		}
	}

	retransmitted, given := c.Retransmit.PollExpired(now)
	for _, p := range retransmitted {
		streamID, seq := splitKey(p.Seq)
		c.Cubic.OnLoss(int64(len(p.Payload)))
		retransmitFrames = append(retransmitFrames, &frame.Frame{
			Type:     frame.TypeData,
			StreamID: streamID,
			Seq:      seq,
			Flags:    frame.FlagNone,
			Payload:  p.Payload,
		})
	}
	for _, g := range given {
		streamID, seq := splitKey(g.Seq)
		delete(c.sentBytes, g.Seq)
		givenUp = append(givenUp, &errs.MaxRetransmissionsExceeded{ID: streamID, Seq: uint64(seq)})
	}
	c.refreshGate()
	if n := len(retransmitFrames); n > 0 {
		metrics.RecordRetransmit(n)
	}
	if n := len(givenUp); n > 0 {
		metrics.RecordGivenUp(n)
	}
	metrics.ObserveRTT(c.RTT.SRTT().Microseconds(), c.RTT.RTO().Microseconds())
	return retransmitFrames, givenUp
}

func ackedSeqs(f *frame.Frame) []uint32 {
	if len(f.Ranges) == 0 {
		return []uint32{f.AckSeq}
	}
	var out []uint32
	for _, r := range f.Ranges {
		for seq := r.Start; seq < r.End; seq++ {
			out = append(out, seq)
		}
	}
	return out
}

func (c *Connection) ackSeq(streamID, seq uint32, now time.Time) {
	key := compositeKey(streamID, seq)
	if n, ok := c.sentBytes[key]; ok {
		c.Cubic.OnAck(int64(n), now)
		delete(c.sentBytes, key)
	}
	c.Loss.OnAck(key)
	c.Retransmit.OnAck(key)
	c.refreshGate()
}

func (c *Connection) handleAck(f *frame.Frame, now time.Time) error {
	s, err := c.Mux.Get(f.StreamID)
	if err != nil {
		return err
	}
	for _, seq := range ackedSeqs(f) {
		s.OnAck(seq)
		c.ackSeq(f.StreamID, seq, now)
	}
	return nil
}

// handleNack treats every named range as an immediate congestion signal
//: the sender reacts to NACK without waiting for the
// threshold detector or an RTO to fire, but the actual resend still runs
// through the normal retransmission scheduler.
func (c *Connection) handleNack(f *frame.Frame) error {
	if _, err := c.Mux.Get(f.StreamID); err != nil {
		return err
	}
	for _, seq := range ackedSeqs(f) {
		key := compositeKey(f.StreamID, seq)
		if n, ok := c.sentBytes[key]; ok {
			c.Cubic.OnLoss(int64(n))
		}
	}
	c.refreshGate()
	return nil
}

func (c *Connection) handlePing(f *frame.Frame) {
	c.controlPending = append(c.controlPending, &frame.Frame{Type: frame.TypePong, PingID: f.PingID})
}

func (c *Connection) handlePong(f *frame.Frame, now time.Time) {
	sentAt, ok := c.pingSentAt[f.PingID]
	if !ok {
		return
	}
	delete(c.pingSentAt, f.PingID)
	c.RTT.Sample(now.Sub(sentAt))
}

// SendPing enqueues a PING carrying a fresh id and records now so the
// matching PONG can be turned into an RTT sample.
func (c *Connection) SendPing(now time.Time) *frame.Frame {
	id := c.nextPingID
	c.nextPingID++
	c.pingSentAt[id] = now
	f := &frame.Frame{Type: frame.TypePing, PingID: id}
	c.controlPending = append(c.controlPending, f)
	return f
}

// SendCongestionUpdate enqueues a connection-scoped CONGESTION frame
// (stream id 0 sentinel) advertising the local cwnd and smoothed RTT.
func (c *Connection) SendCongestionUpdate() *frame.Frame {
	f := &frame.Frame{
		Type:     frame.TypeCongestion,
		StreamID: mux.ReservedZero,
		Cwnd:     uint32(c.Cubic.Cwnd()),
		RttUs:    uint32(c.RTT.SRTT().Microseconds()),
	}
	c.controlPending = append(c.controlPending, f)
	return f
}

func (c *Connection) handleCongestion(f *frame.Frame) error {
	if f.StreamID != mux.ReservedZero {
		return &errs.InvalidStreamId{ID: f.StreamID}
	}
	c.PeerCwnd = f.Cwnd
	c.PeerRTTUs = f.RttUs
	return nil
}

func (c *Connection) handleWindowUpdate(f *frame.Frame) {
	if f.StreamID == mux.ReservedZero {
		c.Flow.UpdateConnectionWindow(int64(f.Increment))
		return
	}
	c.Flow.UpdateWindow(f.StreamID, int64(f.Increment))
}

func (c *Connection) handleStreamOpen(f *frame.Frame) error {
	s := streamstate.New(f.StreamID, mode.Mode(f.Mode))
	if err := s.Open(); err != nil {
		return err
	}
	if err := c.Mux.AddStream(s); err != nil {
		return err
	}
	c.Flow.AddStream(s.ID)
	s.SetCongestionWindow(&c.congestionGate)
	c.controlPending = append(c.controlPending, &frame.Frame{Type: frame.TypeStreamAck, StreamID: f.StreamID})
	metrics.ObserveStreamCount(len(c.Mux.Streams()))
	return nil
}

func (c *Connection) handleStreamClose(f *frame.Frame) error {
	s, err := c.Mux.Get(f.StreamID)
	if err != nil {
		return err
	}
	s.RemoteClose()
	return nil
}

func (c *Connection) handleStreamReset(f *frame.Frame) error {
	s, err := c.Mux.Get(f.StreamID)
	if err != nil {
		return err
	}
	s.Reset()
	c.Mux.Remove(f.StreamID)
	c.Flow.RemoveStream(f.StreamID)
	metrics.ObserveStreamCount(len(c.Mux.Streams()))
	return nil
}

// Poll dispatches one inbound frame to whichever subsystem owns its
// type.
func (c *Connection) Poll(f *frame.Frame, now time.Time) error {
	metrics.RecordFrame(byte(f.Type), "rx")
	switch f.Type {
	case frame.TypeData, frame.TypeFin, frame.TypeRst:
		return c.Mux.Poll(f)
	case frame.TypeAck:
		return c.handleAck(f, now)
	case frame.TypeNack:
		return c.handleNack(f)
	case frame.TypePing:
		c.handlePing(f)
		return nil
	case frame.TypePong:
		c.handlePong(f, now)
		return nil
	case frame.TypeWindowUpdate:
		c.handleWindowUpdate(f)
		return nil
	case frame.TypeStreamOpen:
		return c.handleStreamOpen(f)
	case frame.TypeStreamAck:
		return nil
	case frame.TypeStreamClose:
		return c.handleStreamClose(f)
	case frame.TypeStreamReset:
		return c.handleStreamReset(f)
	case frame.TypeCongestion:
		return c.handleCongestion(f)
	default:
		return &errs.UnknownFrameType{Byte: byte(f.Type)}
	}
}

// ReapClosed sweeps Closed streams out of the stream table and returns
// how many were removed.
func (c *Connection) ReapClosed() int {
	n := c.Mux.ReapClosed()
	if n > 0 {
		metrics.ObserveStreamCount(len(c.Mux.Streams()))
	}
	return n
}
