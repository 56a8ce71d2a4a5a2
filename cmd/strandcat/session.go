package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/katzenpost/strand/conn"
	"github.com/katzenpost/strand/crypto"
	"github.com/katzenpost/strand/frame"
	"github.com/katzenpost/strand/handshake"
	"github.com/katzenpost/strand/metrics"
	"github.com/katzenpost/strand/mic"
	"github.com/katzenpost/strand/mode"
)

// Record types for the demo wire: handshake messages are small and rare
// enough to carry as cbor, matching the scratch-serialization role cbor
// plays elsewhere in the surrounding stack (client2's Frame type); the
// steady-state DATA/ACK/etc. traffic uses strand's own bit-exact frame
// codec instead.
const (
	recordHandshakeInit byte = iota + 1
	recordHandshakeResponse
	recordHandshakeComplete
	recordFrame
)

func writeRecord(w io.Writer, kind byte, payload []byte) error {
	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readRecord(r io.Reader) (byte, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(header[1:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return header[0], payload, nil
}

// wireInit/wireResponse mirror handshake.InitMessage/ResponseMessage but
// carry the MIC through its own bit-exact codec (mic.Encode/mic.Decode)
// instead of handing it to cbor's generic struct reflection.
type wireInit struct {
	EphemeralPublic [32]byte
	InitiatorMIC    []byte
}

type wireResponse struct {
	EphemeralPublic  [32]byte
	ResponderMIC     []byte
	EncryptedPayload []byte
}

func marshalInit(m *handshake.InitMessage) ([]byte, error) {
	encodedMIC, err := mic.Encode(m.InitiatorMIC)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(&wireInit{EphemeralPublic: m.EphemeralPublic, InitiatorMIC: encodedMIC})
}

func unmarshalInit(buf []byte) (*handshake.InitMessage, error) {
	var w wireInit
	if err := cbor.Unmarshal(buf, &w); err != nil {
		return nil, err
	}
	m, err := mic.Decode(w.InitiatorMIC)
	if err != nil {
		return nil, err
	}
	return &handshake.InitMessage{EphemeralPublic: w.EphemeralPublic, InitiatorMIC: m}, nil
}

func marshalResponse(m *handshake.ResponseMessage) ([]byte, error) {
	encodedMIC, err := mic.Encode(m.ResponderMIC)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(&wireResponse{
		EphemeralPublic:  m.EphemeralPublic,
		ResponderMIC:     encodedMIC,
		EncryptedPayload: m.EncryptedPayload,
	})
}

func unmarshalResponse(buf []byte) (*handshake.ResponseMessage, error) {
	var w wireResponse
	if err := cbor.Unmarshal(buf, &w); err != nil {
		return nil, err
	}
	m, err := mic.Decode(w.ResponderMIC)
	if err != nil {
		return nil, err
	}
	return &handshake.ResponseMessage{
		EphemeralPublic:  w.EphemeralPublic,
		ResponderMIC:     m,
		EncryptedPayload: w.EncryptedPayload,
	}, nil
}

// selfSignedIdentity generates a fresh Ed25519 keypair and a self-signed
// MIC valid from now for validFor.
func selfSignedIdentity(now uint64, validFor uint64) (*crypto.SigningKeyPair, *mic.MIC, error) {
	kp, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return nil, nil, err
	}
	var nodeID [32]byte
	copy(nodeID[:], kp.Public)
	built, err := mic.Build(&mic.MIC{
		NodeID:       nodeID,
		ModelHash:    crypto.SHA256([]byte("strandcat-demo-identity")),
		Capabilities: []mic.Capability{{Tag: mic.CapTextGeneration}},
		Provenance: &mic.Provenance{
			Description: "strandcat demo corpus",
			DatasetHash: crypto.BLAKE3([]byte("strandcat-demo-dataset")),
			Timestamp:   now,
		},
		ValidFrom:       now,
		ValidUntil:      now + validFor,
		IssuerPublicKey: nodeID,
	}, kp)
	if err != nil {
		return nil, nil, err
	}
	return kp, built, nil
}

// session owns one Connection plus the net.Conn it's multiplexed over,
// and the two background pumps (reader, ticker) needed to drive a
// caller-driven core from blocking socket I/O.
type session struct {
	id   uuid.UUID
	nc   net.Conn
	core *conn.Connection
	log  *log.Logger
}

func dialInitiator(addr string, parent *log.Logger) (*session, *mic.MIC, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	sessionID := uuid.New()
	slog := parent.WithPrefix("initiator").With("session", sessionID.String())

	now := uint64(time.Now().Unix())
	_, myMIC, err := selfSignedIdentity(now, 365*24*3600)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	initiator := handshake.NewInitiator(myMIC)
	initMsg, err := initiator.CreateInit()
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	payload, err := marshalInit(initMsg)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	if err := writeRecord(nc, recordHandshakeInit, payload); err != nil {
		nc.Close()
		return nil, nil, err
	}
	slog.Info("sent HANDSHAKE_INIT")

	kind, respPayload, err := readRecord(nc)
	if err != nil || kind != recordHandshakeResponse {
		nc.Close()
		return nil, nil, fmt.Errorf("expected handshake response, got kind %d err %v", kind, err)
	}
	respMsg, err := unmarshalResponse(respPayload)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	completeMsg, err := initiator.ProcessResponse(respMsg, now)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	completePayload, err := cbor.Marshal(completeMsg)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	if err := writeRecord(nc, recordHandshakeComplete, completePayload); err != nil {
		nc.Close()
		return nil, nil, err
	}
	slog.Info("handshake complete", "peer_node_id", fmt.Sprintf("%x", respMsg.ResponderMIC.NodeID[:8]))

	c := conn.New(demoMaxStreams, conn.DefaultConnectionWindow, conn.DefaultStreamWindow)
	if err := c.Connect(); err != nil {
		nc.Close()
		return nil, nil, err
	}
	if err := c.OnHandshakeComplete(); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return &session{id: sessionID, nc: nc, core: c, log: slog}, respMsg.ResponderMIC, nil
}

func acceptResponder(nc net.Conn, parent *log.Logger) (*session, *mic.MIC, error) {
	sessionID := uuid.New()
	slog := parent.WithPrefix("responder").With("session", sessionID.String())

	kind, initPayload, err := readRecord(nc)
	if err != nil || kind != recordHandshakeInit {
		nc.Close()
		return nil, nil, fmt.Errorf("expected handshake init, got kind %d err %v", kind, err)
	}
	initMsg, err := unmarshalInit(initPayload)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	now := uint64(time.Now().Unix())
	_, myMIC, err := selfSignedIdentity(now, 365*24*3600)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	responder := handshake.NewResponder(myMIC)
	respMsg, err := responder.ProcessInit(initMsg, now)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	respPayload, err := marshalResponse(respMsg)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	if err := writeRecord(nc, recordHandshakeResponse, respPayload); err != nil {
		nc.Close()
		return nil, nil, err
	}

	kind, completePayload, err := readRecord(nc)
	if err != nil || kind != recordHandshakeComplete {
		nc.Close()
		return nil, nil, fmt.Errorf("expected handshake complete, got kind %d err %v", kind, err)
	}
	var completeMsg handshake.CompleteMessage
	if err := cbor.Unmarshal(completePayload, &completeMsg); err != nil {
		nc.Close()
		return nil, nil, err
	}
	if err := responder.ProcessComplete(&completeMsg); err != nil {
		nc.Close()
		return nil, nil, err
	}
	slog.Info("handshake complete", "peer_node_id", fmt.Sprintf("%x", initMsg.InitiatorMIC.NodeID[:8]))

	c := conn.New(demoMaxStreams, conn.DefaultConnectionWindow, conn.DefaultStreamWindow)
	if err := c.Connect(); err != nil {
		nc.Close()
		return nil, nil, err
	}
	if err := c.OnHandshakeComplete(); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return &session{id: sessionID, nc: nc, core: c, log: slog}, initMsg.InitiatorMIC, nil
}

// demoMaxStreams is the stream cap for a strandcat session; the driver
// only ever needs the one stream it relays stdin/stdout over.
const demoMaxStreams = 64

// pumpOutbound drains the core's ready frames onto the wire every tick.
func (s *session) pumpOutbound(now func() time.Time) error {
	for _, f := range s.core.Drain(now()) {
		buf, err := frame.Encode(f)
		if err != nil {
			return err
		}
		if err := writeRecord(s.nc, recordFrame, buf); err != nil {
			return err
		}
	}
	return nil
}

// pumpInbound blocks reading wire records and feeds DATA/control frames
// into the core until the connection closes or haltCh fires.
func (s *session) pumpInbound(haltCh <-chan struct{}, onData func(streamID uint32, payload []byte)) error {
	for {
		select {
		case <-haltCh:
			return nil
		default:
		}
		kind, payload, err := readRecord(s.nc)
		if err != nil {
			return err
		}
		if kind != recordFrame {
			continue
		}
		f, _, err := frame.Decode(payload)
		if err != nil {
			s.log.Warn("dropping undecodable frame", "err", err)
			continue
		}
		if err := s.core.Poll(f, time.Now()); err != nil {
			s.log.Warn("poll error", "err", err)
			continue
		}
		if f.Type == frame.TypeData {
			strm, err := s.core.Mux.Get(f.StreamID)
			if err != nil {
				continue
			}
			for {
				out, err := strm.Recv()
				if err != nil || out == nil {
					break
				}
				onData(f.StreamID, out)
			}
		}
	}
}

// openDemoStream opens one reliable-ordered stream for the CLI's
// stdin/stdout relay.
func (s *session) openDemoStream() (uint32, error) {
	strm, err := s.core.OpenStream(mode.ReliableOrdered)
	if err != nil {
		return 0, err
	}
	metrics.ObserveStreamCount(len(s.core.Mux.Streams()))
	return strm.ID, nil
}
