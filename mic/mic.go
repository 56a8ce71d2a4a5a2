// Package mic implements the Model Identity Certificate: canonical
// signable bytes, a hand-rolled binary codec (the format is bit-exact, not
// negotiable, so it is not delegated to cbor the way scratch structures
// elsewhere in strand are), and structural plus chain validation.
package mic

import (
	"encoding/binary"

	"github.com/katzenpost/strand/crypto"
	"github.com/katzenpost/strand/errs"
)

// Version is the only MIC format version this codec understands.
const Version byte = 1

// Built-in capability tags: six built-ins, tags 0x01..0x06, plus 0xFF
// for a custom capability.
const (
	CapTextGeneration   byte = 0x01
	CapImageGeneration  byte = 0x02
	CapAudioGeneration  byte = 0x03
	CapCodeGeneration   byte = 0x04
	CapEmbeddings       byte = 0x05
	CapClassification   byte = 0x06
	capCustomTag        byte = 0xFF
)

// Capability is either one of the six built-in tags or a custom,
// length-prefixed UTF-8 string tagged 0xFF.
type Capability struct {
	Tag    byte
	Custom string // only meaningful when Tag == capCustomTag
}

func NewCustomCapability(name string) Capability {
	return Capability{Tag: capCustomTag, Custom: name}
}

// Provenance records optional training provenance.
type Provenance struct {
	Description string
	DatasetHash [32]byte
	Timestamp   uint64
}

// MIC is the signed identity certificate.
type MIC struct {
	NodeID          [32]byte // subject's Ed25519 public key
	ModelHash       [32]byte
	Capabilities    []Capability
	Provenance      *Provenance
	ValidFrom       uint64
	ValidUntil      uint64
	Signature       [64]byte
	IssuerPublicKey [32]byte
}

// SignableBytes returns the canonical byte sequence the issuer signs and
// the verifier recomputes.
func SignableBytes(m *MIC) ([]byte, error) {
	var buf []byte
	buf = append(buf, Version)
	buf = append(buf, m.NodeID[:]...)
	buf = append(buf, m.ModelHash[:]...)

	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(m.Capabilities)))
	buf = append(buf, countBuf[:]...)
	for _, c := range m.Capabilities {
		if c.Tag == capCustomTag {
			buf = append(buf, capCustomTag)
			var lenBuf [2]byte
			binary.BigEndian.PutUint16(lenBuf[:], uint16(len(c.Custom)))
			buf = append(buf, lenBuf[:]...)
			buf = append(buf, []byte(c.Custom)...)
		} else {
			if c.Tag < CapTextGeneration || c.Tag > CapClassification {
				return nil, errs.ErrInvalidCapability
			}
			buf = append(buf, c.Tag)
		}
	}

	if m.Provenance == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(m.Provenance.Description)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, []byte(m.Provenance.Description)...)
		buf = append(buf, m.Provenance.DatasetHash[:]...)
		var tsBuf [8]byte
		binary.BigEndian.PutUint64(tsBuf[:], m.Provenance.Timestamp)
		buf = append(buf, tsBuf[:]...)
	}

	var vfBuf, vuBuf [8]byte
	binary.BigEndian.PutUint64(vfBuf[:], m.ValidFrom)
	binary.BigEndian.PutUint64(vuBuf[:], m.ValidUntil)
	buf = append(buf, vfBuf[:]...)
	buf = append(buf, vuBuf[:]...)

	buf = append(buf, m.IssuerPublicKey[:]...)
	return buf, nil
}

// Build constructs a signed MIC. issuer signs the new MIC's signable
// bytes; m.IssuerPublicKey must already be set to issuer's public key.
func Build(m *MIC, issuer *crypto.SigningKeyPair) (*MIC, error) {
	if m.ValidUntil <= m.ValidFrom {
		return nil, errs.ErrMicBuild
	}
	signable, err := SignableBytes(m)
	if err != nil {
		return nil, errs.ErrMicBuild
	}
	sig := issuer.Sign(signable)
	out := *m
	copy(out.Signature[:], sig)
	return &out, nil
}

// Encode serializes m as signable_bytes ++ signature.
func Encode(m *MIC) ([]byte, error) {
	signable, err := SignableBytes(m)
	if err != nil {
		return nil, errs.ErrMicSerialization
	}
	return append(signable, m.Signature[:]...), nil
}

// Decode parses a serialized MIC. Unknown versions fail with
// ErrMicVersionUnsupported.
func Decode(buf []byte) (*MIC, error) {
	if len(buf) < 1 {
		return nil, errs.ErrMicDeserialization
	}
	if buf[0] != Version {
		return nil, errs.ErrMicVersionUnsupported
	}
	pos := 1
	need := func(n int) error {
		if len(buf)-pos < n {
			return errs.ErrMicDeserialization
		}
		return nil
	}

	m := &MIC{}
	if err := need(32); err != nil {
		return nil, err
	}
	copy(m.NodeID[:], buf[pos:pos+32])
	pos += 32

	if err := need(32); err != nil {
		return nil, err
	}
	copy(m.ModelHash[:], buf[pos:pos+32])
	pos += 32

	if err := need(2); err != nil {
		return nil, err
	}
	count := int(binary.BigEndian.Uint16(buf[pos : pos+2]))
	pos += 2

	m.Capabilities = make([]Capability, 0, count)
	for i := 0; i < count; i++ {
		if err := need(1); err != nil {
			return nil, err
		}
		tag := buf[pos]
		pos++
		if tag == capCustomTag {
			if err := need(2); err != nil {
				return nil, err
			}
			clen := int(binary.BigEndian.Uint16(buf[pos : pos+2]))
			pos += 2
			if err := need(clen); err != nil {
				return nil, err
			}
			name := string(buf[pos : pos+clen])
			pos += clen
			m.Capabilities = append(m.Capabilities, Capability{Tag: capCustomTag, Custom: name})
		} else {
			m.Capabilities = append(m.Capabilities, Capability{Tag: tag})
		}
	}

	if err := need(1); err != nil {
		return nil, err
	}
	hasProvenance := buf[pos] != 0
	pos++
	if hasProvenance {
		if err := need(2); err != nil {
			return nil, err
		}
		dlen := int(binary.BigEndian.Uint16(buf[pos : pos+2]))
		pos += 2
		if err := need(dlen); err != nil {
			return nil, err
		}
		desc := string(buf[pos : pos+dlen])
		pos += dlen
		if err := need(32); err != nil {
			return nil, err
		}
		var datasetHash [32]byte
		copy(datasetHash[:], buf[pos:pos+32])
		pos += 32
		if err := need(8); err != nil {
			return nil, err
		}
		ts := binary.BigEndian.Uint64(buf[pos : pos+8])
		pos += 8
		m.Provenance = &Provenance{Description: desc, DatasetHash: datasetHash, Timestamp: ts}
	}

	if err := need(16); err != nil {
		return nil, err
	}
	m.ValidFrom = binary.BigEndian.Uint64(buf[pos : pos+8])
	m.ValidUntil = binary.BigEndian.Uint64(buf[pos+8 : pos+16])
	pos += 16

	if err := need(32); err != nil {
		return nil, err
	}
	copy(m.IssuerPublicKey[:], buf[pos:pos+32])
	pos += 32

	if err := need(64); err != nil {
		return nil, err
	}
	copy(m.Signature[:], buf[pos:pos+64])
	pos += 64

	return m, nil
}

// Validate checks m's signature and validity window at now (unix
// seconds).
func Validate(m *MIC, now uint64) error {
	signable, err := SignableBytes(m)
	if err != nil {
		return err
	}
	if !crypto.Verify(m.IssuerPublicKey[:], signable, m.Signature[:]) {
		return errs.ErrSignatureVerification
	}
	if now < m.ValidFrom {
		return &errs.MicNotYetValid{NotBefore: m.ValidFrom, Now: now}
	}
	if now > m.ValidUntil {
		return &errs.MicExpired{NotAfter: m.ValidUntil, Now: now}
	}
	return nil
}

// ValidateChain validates a leaf-first certificate chain:
// every MIC must individually validate, each non-root MIC's issuer must
// match the next MIC's node ID, and the final (root) MIC must be
// self-signed.
func ValidateChain(chain []*MIC, now uint64) error {
	if len(chain) == 0 {
		return errs.ErrMicChainValidation
	}
	for i, m := range chain {
		if err := Validate(m, now); err != nil {
			return err
		}
		if i < len(chain)-1 {
			if chain[i].IssuerPublicKey != chain[i+1].NodeID {
				return errs.ErrMicChainValidation
			}
		}
	}
	root := chain[len(chain)-1]
	if root.IssuerPublicKey != root.NodeID {
		return errs.ErrMicChainValidation
	}
	return nil
}
