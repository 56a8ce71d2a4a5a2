// Package handshake implements the 1-RTT, three-message mutual
// authentication handshake: Initiator and Responder role
// state machines, the HKDF-based key schedule, and AEAD-protected finished
// confirmation.
package handshake

import (
	"github.com/katzenpost/strand/crypto"
	"github.com/katzenpost/strand/errs"
	"github.com/katzenpost/strand/mic"
)

// FinishedLiteral is the ASCII literal both sides encrypt to confirm
// possession of the derived keys.
const FinishedLiteral = "nexus handshake finished"

// handshakeInfoLabel is the HKDF-Expand info prefix for the handshake
// secret — kept distinct from FinishedLiteral intentionally;
// the wire format borrows this label from the transport's working name.
const handshakeInfoLabel = "strand handshake"

// DefaultSuite is the AEAD suite used to protect the two finished
// messages when the caller does not specify one.
const DefaultSuite = crypto.SuiteChaCha20Poly1305

// Message is one of the three wire messages exchanged during the
// handshake.
type InitMessage struct {
	EphemeralPublic [32]byte
	InitiatorMIC    *mic.MIC
}

type ResponseMessage struct {
	EphemeralPublic  [32]byte
	ResponderMIC     *mic.MIC
	EncryptedPayload []byte
}

type CompleteMessage struct {
	EncryptedPayload []byte
}

// State is the handshake role's lifecycle state.
type State byte

const (
	StateIdle State = iota
	StateInitSent
	StateResponseReceived
	StateComplete
)

func nonceWithLastByte(b byte) []byte {
	n := make([]byte, crypto.AEADNonceSize)
	n[len(n)-1] = b
	return n
}

func deriveDirectionalKeys(handshakeSecret []byte, clientNodeID, serverNodeID [16]byte) (clientWriteKey, serverWriteKey, clientWriteIV, serverWriteIV []byte, err error) {
	mkInfo := func(label string) []byte {
		info := append([]byte(label), clientNodeID[:]...)
		info = append(info, serverNodeID[:]...)
		return info
	}
	if clientWriteKey, err = crypto.HKDFExpand(handshakeSecret, mkInfo("client write key"), 32); err != nil {
		return
	}
	if serverWriteKey, err = crypto.HKDFExpand(handshakeSecret, mkInfo("server write key"), 32); err != nil {
		return
	}
	if clientWriteIV, err = crypto.HKDFExpand(handshakeSecret, mkInfo("client write iv"), 12); err != nil {
		return
	}
	if serverWriteIV, err = crypto.HKDFExpand(handshakeSecret, mkInfo("server write iv"), 12); err != nil {
		return
	}
	return
}

func keySchedule(z []byte, clientNodeID, serverNodeID [16]byte) (clientWriteKey, serverWriteKey, clientWriteIV, serverWriteIV []byte, err error) {
	earlySecret := crypto.HKDFExtract(make([]byte, 32), z)
	handshakeSecret, err := crypto.HKDFExpand(earlySecret, []byte(handshakeInfoLabel), 32)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return deriveDirectionalKeys(handshakeSecret, clientNodeID, serverNodeID)
}

// Initiator drives the client side of the handshake.
type Initiator struct {
	state State
	suite crypto.CipherSuite

	myMIC *mic.MIC

	ephemeral *crypto.EphemeralKeyPair

	ClientWriteKey, ServerWriteKey []byte
	ClientWriteIV, ServerWriteIV  []byte
	PeerMIC                        *mic.MIC
}

// NewInitiator returns an Initiator in the Idle state for the given local
// identity certificate.
func NewInitiator(myMIC *mic.MIC) *Initiator {
	return &Initiator{myMIC: myMIC, suite: DefaultSuite}
}

// State returns the initiator's current state.
func (i *Initiator) State() State { return i.state }

// CreateInit generates a fresh ephemeral keypair and returns the
// HANDSHAKE_INIT message. Requires Idle.
func (i *Initiator) CreateInit() (*InitMessage, error) {
	if i.state != StateIdle {
		return nil, &errs.InvalidStateTransition{From: "initiator", To: "init_sent"}
	}
	eph, err := crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	i.ephemeral = eph
	i.state = StateInitSent
	return &InitMessage{EphemeralPublic: eph.Public, InitiatorMIC: i.myMIC}, nil
}

// ProcessResponse validates the responder's MIC, performs the DH, derives
// session keys, verifies the server's finished confirmation, and produces
// the client finished message for HANDSHAKE_COMPLETE. Requires InitSent.
func (i *Initiator) ProcessResponse(resp *ResponseMessage, now uint64) (*CompleteMessage, error) {
	if i.state != StateInitSent {
		return nil, &errs.InvalidStateTransition{From: "initiator", To: "response_received"}
	}
	if err := mic.Validate(resp.ResponderMIC, now); err != nil {
		return nil, err
	}

	z, err := i.ephemeral.DiffieHellman(resp.EphemeralPublic[:])
	if err != nil {
		return nil, errs.ErrHandshake
	}

	clientNodeID := crypto.NodeID(i.myMIC.NodeID[:])
	serverNodeID := crypto.NodeID(resp.ResponderMIC.NodeID[:])

	clientWriteKey, serverWriteKey, clientWriteIV, serverWriteIV, err := keySchedule(z, clientNodeID, serverNodeID)
	if err != nil {
		return nil, errs.ErrHandshake
	}

	plaintext, err := crypto.Open(i.suite, serverWriteKey, nonceWithLastByte(0x02), resp.EncryptedPayload, nil)
	if err != nil || string(plaintext) != FinishedLiteral {
		return nil, errs.ErrHandshake
	}

	clientFinished, err := crypto.Seal(i.suite, clientWriteKey, nonceWithLastByte(0x03), []byte(FinishedLiteral), nil)
	if err != nil {
		return nil, errs.ErrHandshake
	}

	i.ClientWriteKey = clientWriteKey
	i.ServerWriteKey = serverWriteKey
	i.ClientWriteIV = clientWriteIV
	i.ServerWriteIV = serverWriteIV
	i.PeerMIC = resp.ResponderMIC
	i.state = StateComplete

	return &CompleteMessage{EncryptedPayload: clientFinished}, nil
}

// Responder drives the server side of the handshake.
type Responder struct {
	state State
	suite crypto.CipherSuite

	myMIC *mic.MIC

	ephemeral *crypto.EphemeralKeyPair

	ClientWriteKey, ServerWriteKey []byte
	ClientWriteIV, ServerWriteIV  []byte
	PeerMIC                        *mic.MIC
}

// NewResponder returns a Responder in the Idle state for the given local
// identity certificate.
func NewResponder(myMIC *mic.MIC) *Responder {
	return &Responder{myMIC: myMIC, suite: DefaultSuite}
}

// State returns the responder's current state.
func (r *Responder) State() State { return r.state }

// ProcessInit validates the initiator's MIC, generates a fresh ephemeral
// keypair, derives session keys, and produces the server finished
// confirmation. Requires Idle.
func (r *Responder) ProcessInit(initMsg *InitMessage, now uint64) (*ResponseMessage, error) {
	if r.state != StateIdle {
		return nil, &errs.InvalidStateTransition{From: "responder", To: "response_received"}
	}
	if err := mic.Validate(initMsg.InitiatorMIC, now); err != nil {
		return nil, err
	}

	eph, err := crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	r.ephemeral = eph

	z, err := eph.DiffieHellman(initMsg.EphemeralPublic[:])
	if err != nil {
		return nil, errs.ErrHandshake
	}

	clientNodeID := crypto.NodeID(initMsg.InitiatorMIC.NodeID[:])
	serverNodeID := crypto.NodeID(r.myMIC.NodeID[:])

	clientWriteKey, serverWriteKey, clientWriteIV, serverWriteIV, err := keySchedule(z, clientNodeID, serverNodeID)
	if err != nil {
		return nil, errs.ErrHandshake
	}

	serverFinished, err := crypto.Seal(r.suite, serverWriteKey, nonceWithLastByte(0x02), []byte(FinishedLiteral), nil)
	if err != nil {
		return nil, errs.ErrHandshake
	}

	r.ClientWriteKey = clientWriteKey
	r.ServerWriteKey = serverWriteKey
	r.ClientWriteIV = clientWriteIV
	r.ServerWriteIV = serverWriteIV
	r.PeerMIC = initMsg.InitiatorMIC
	r.state = StateResponseReceived

	return &ResponseMessage{
		EphemeralPublic:  eph.Public,
		ResponderMIC:     r.myMIC,
		EncryptedPayload: serverFinished,
	}, nil
}

// ProcessComplete decrypts and checks the client's finished confirmation.
// Requires ResponseReceived.
func (r *Responder) ProcessComplete(complete *CompleteMessage) error {
	if r.state != StateResponseReceived {
		return &errs.InvalidStateTransition{From: "responder", To: "complete"}
	}
	plaintext, err := crypto.Open(r.suite, r.ClientWriteKey, nonceWithLastByte(0x03), complete.EncryptedPayload, nil)
	if err != nil || string(plaintext) != FinishedLiteral {
		return errs.ErrHandshake
	}
	r.state = StateComplete
	return nil
}
