// Package errs collects the error taxonomy shared by every strand package.
//
// Errors with no payload are sentinels (errors.Is-comparable); errors that
// carry diagnostic fields are small structs implementing error. Callers
// that need to inspect a field should use errors.As.
package errs

import "fmt"

// Transport framing errors.

type FrameTooShort struct {
	Expected, Actual int
}

func (e *FrameTooShort) Error() string {
	return fmt.Sprintf("frame too short: expected %d bytes, got %d", e.Expected, e.Actual)
}

type UnknownFrameType struct {
	Byte byte
}

func (e *UnknownFrameType) Error() string {
	return fmt.Sprintf("unknown frame type byte 0x%02x", e.Byte)
}

type InvalidTransportMode struct {
	Byte byte
}

func (e *InvalidTransportMode) Error() string {
	return fmt.Sprintf("invalid transport mode byte 0x%02x", e.Byte)
}

type PayloadTooLarge struct {
	Size, Max int
}

func (e *PayloadTooLarge) Error() string {
	return fmt.Sprintf("payload too large: %d bytes exceeds max %d", e.Size, e.Max)
}

// Multiplexing errors.

type StreamNotFound struct {
	ID uint32
}

func (e *StreamNotFound) Error() string { return fmt.Sprintf("stream %d not found", e.ID) }

type StreamAlreadyExists struct {
	ID uint32
}

func (e *StreamAlreadyExists) Error() string { return fmt.Sprintf("stream %d already exists", e.ID) }

type StreamClosed struct {
	ID uint32
}

func (e *StreamClosed) Error() string { return fmt.Sprintf("stream %d is closed", e.ID) }

type MaxStreamsExceeded struct {
	Cap uint32
}

func (e *MaxStreamsExceeded) Error() string {
	return fmt.Sprintf("max streams exceeded: cap %d", e.Cap)
}

type InvalidStreamId struct {
	ID uint32
}

func (e *InvalidStreamId) Error() string { return fmt.Sprintf("invalid stream id %d", e.ID) }

// State machine errors.

type InvalidStateTransition struct {
	From, To string
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

var (
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrConnectionTimeout = fmt.Errorf("connection timeout")
)

// Flow and retransmission errors.

type FlowControlBlocked struct {
	ID uint32
}

func (e *FlowControlBlocked) Error() string {
	return fmt.Sprintf("flow control blocked on stream %d", e.ID)
}

var ErrFlowControlViolation = fmt.Errorf("flow control violation")

type RetransmitBufferFull struct {
	Inflight, Max int
}

func (e *RetransmitBufferFull) Error() string {
	return fmt.Sprintf("retransmit buffer full: inflight %d, max %d", e.Inflight, e.Max)
}

type MaxRetransmissionsExceeded struct {
	ID  uint32
	Seq uint64
}

func (e *MaxRetransmissionsExceeded) Error() string {
	return fmt.Sprintf("max retransmissions exceeded for stream %d seq %d", e.ID, e.Seq)
}

// Cryptography and trust errors.

var (
	ErrInvalidKey            = fmt.Errorf("invalid key")
	ErrSignatureVerification = fmt.Errorf("signature verification failed")
	ErrEncryption            = fmt.Errorf("encryption failed")
	ErrDecryption            = fmt.Errorf("decryption failed")
	ErrMicBuild              = fmt.Errorf("mic build failed")
	ErrMicSerialization      = fmt.Errorf("mic serialization failed")
	ErrMicDeserialization    = fmt.Errorf("mic deserialization failed")
	ErrMicChainValidation    = fmt.Errorf("mic chain validation failed")
	ErrMicVersionUnsupported = fmt.Errorf("mic version unsupported")
	ErrInvalidCapability     = fmt.Errorf("invalid capability")
)

type MicExpired struct {
	NotAfter, Now uint64
}

func (e *MicExpired) Error() string {
	return fmt.Sprintf("mic expired: valid_until %d, now %d", e.NotAfter, e.Now)
}

type MicNotYetValid struct {
	NotBefore, Now uint64
}

func (e *MicNotYetValid) Error() string {
	return fmt.Sprintf("mic not yet valid: valid_from %d, now %d", e.NotBefore, e.Now)
}

// Handshake errors.

var (
	ErrHandshake        = fmt.Errorf("handshake failed")
	ErrHandshakeTimeout = fmt.Errorf("handshake timeout")
)

// Ambient errors.

var ErrIo = fmt.Errorf("io error")

type BufferTooSmall struct {
	Need, Have int
}

func (e *BufferTooSmall) Error() string {
	return fmt.Sprintf("buffer too small: need %d, have %d", e.Need, e.Have)
}

var ErrInternal = fmt.Errorf("internal error")
