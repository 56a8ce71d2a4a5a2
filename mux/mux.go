// Package mux implements the stream table, client-stream-ID allocation,
// and inbound frame dispatch.
package mux

import (
	"github.com/katzenpost/strand/errs"
	"github.com/katzenpost/strand/frame"
	"github.com/katzenpost/strand/mode"
	"github.com/katzenpost/strand/streamstate"
)

// Reserved stream IDs.
const (
	ReservedZero = 0x00000000
	ReservedMax  = 0xFFFFFFFF
)

// DefaultMaxStreams is the default cap on live streams per connection.
const DefaultMaxStreams = 1024

// Multiplexer owns the stream table and dispatches inbound frames by
// stream ID.
type Multiplexer struct {
	streams       map[uint32]*streamstate.Stream
	nextClientID  uint32
	maxStreams    uint32
}

// New returns an empty multiplexer with the given max-streams cap.
func New(maxStreams uint32) *Multiplexer {
	return &Multiplexer{
		streams:      make(map[uint32]*streamstate.Stream),
		nextClientID: 1,
		maxStreams:   maxStreams,
	}
}

// isReserved reports whether id is one of the two reserved stream IDs.
func isReserved(id uint32) bool {
	return id == ReservedZero || id == ReservedMax
}

// CreateStream allocates the next client-initiated stream ID (odd,
// monotonically increasing, u32 wrap) and opens a new stream in the given
// mode.
func (m *Multiplexer) CreateStream(mode mode.Mode) (*streamstate.Stream, error) {
	if uint32(len(m.streams)) >= m.maxStreams {
		return nil, &errs.MaxStreamsExceeded{Cap: m.maxStreams}
	}
	id := m.nextClientID
	m.nextClientID += 2 // stride 2, wraps naturally on overflow
	if isReserved(id) {
		// 0xFFFFFFFF is the only odd value a stride-2-from-1 counter can
		// land on that is reserved; skip it and wrap to 1.
		id = m.nextClientID
		m.nextClientID += 2
	}
	s := streamstate.New(id, mode)
	if err := s.Open(); err != nil {
		return nil, err
	}
	m.streams[id] = s
	return s, nil
}

// AddStream inserts an externally constructed stream (e.g. a
// server-allocated, even-ID stream created in response to STREAM_OPEN).
func (m *Multiplexer) AddStream(s *streamstate.Stream) error {
	if isReserved(s.ID) {
		return &errs.InvalidStreamId{ID: s.ID}
	}
	if _, exists := m.streams[s.ID]; exists {
		return &errs.StreamAlreadyExists{ID: s.ID}
	}
	if uint32(len(m.streams)) >= m.maxStreams {
		return &errs.MaxStreamsExceeded{Cap: m.maxStreams}
	}
	m.streams[s.ID] = s
	return nil
}

// Get returns the stream for id, or StreamNotFound.
func (m *Multiplexer) Get(id uint32) (*streamstate.Stream, error) {
	s, ok := m.streams[id]
	if !ok {
		return nil, &errs.StreamNotFound{ID: id}
	}
	return s, nil
}

// Remove deletes id from the stream table unconditionally.
func (m *Multiplexer) Remove(id uint32) {
	delete(m.streams, id)
}

// Streams returns every live stream; the multiplexer's drain order
// across streams is unspecified.
func (m *Multiplexer) Streams() []*streamstate.Stream {
	out := make([]*streamstate.Stream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	return out
}

// DrainFrames collects each live stream's pending frames, in each stream's
// own send order, but across streams in unspecified order.
func (m *Multiplexer) DrainFrames() []*frame.Frame {
	var out []*frame.Frame
	for _, s := range m.streams {
		out = append(out, s.Pending()...)
	}
	return out
}

// Poll dispatches one inbound frame. DATA/FIN/RST require a known,
// non-reserved stream ID. Other frame types are ignored by the mux itself
// (handled at the connection layer) and Poll returns nil for them.
func (m *Multiplexer) Poll(f *frame.Frame) error {
	switch f.Type {
	case frame.TypeData, frame.TypeFin, frame.TypeRst:
		if isReserved(f.StreamID) {
			return &errs.InvalidStreamId{ID: f.StreamID}
		}
		s, err := m.Get(f.StreamID)
		if err != nil {
			return err
		}
		switch f.Type {
		case frame.TypeData:
			if err := s.DeliverData(f); err != nil {
				return err
			}
			if f.Flags&frame.FlagFin != 0 {
				s.RemoteClose()
			}
			return nil
		case frame.TypeFin:
			s.RemoteClose()
			return nil
		case frame.TypeRst:
			s.Reset()
			m.Remove(f.StreamID)
			return nil
		}
	}
	return nil
}

// ReapClosed removes every Closed stream still lingering in the table.
func (m *Multiplexer) ReapClosed() int {
	n := 0
	for id, s := range m.streams {
		if s.State() == streamstate.Closed {
			delete(m.streams, id)
			n++
		}
	}
	return n
}
