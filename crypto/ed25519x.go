// Package crypto wraps the primitives strand needs: Ed25519 signing,
// X25519 key agreement, HKDF-SHA256, two AEAD suites, and two hash
// functions. It is a thin layer over stdlib, golang.org/x/crypto, and
// lukechampine.com/blake3.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/katzenpost/strand/errs"
)

const (
	Ed25519PublicKeySize = ed25519.PublicKeySize
	Ed25519SeedSize      = ed25519.SeedSize
	Ed25519SignatureSize = ed25519.SignatureSize
	NodeIDSize           = 16
)

// SigningKeyPair is an Ed25519 identity keypair.
type SigningKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateSigningKeyPair draws a fresh Ed25519 keypair from an OS
// cryptographic RNG (crypto/rand via ed25519.GenerateKey).
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &SigningKeyPair{Public: pub, Private: priv}, nil
}

// SigningKeyPairFromSeed reconstructs a keypair from a 32-byte seed.
func SigningKeyPairFromSeed(seed []byte) (*SigningKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errs.ErrInvalidKey
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &SigningKeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Sign produces a 64-byte signature over msg.
func (k *SigningKeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Private, msg)
}

// Verify checks sig over msg under pub.
func Verify(pub []byte, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// NodeID derives the 16-byte Node ID from an Ed25519 public key: the first
// 16 bytes of SHA-256(public_key).
func NodeID(pub []byte) [NodeIDSize]byte {
	h := sha256.Sum256(pub)
	var id [NodeIDSize]byte
	copy(id[:], h[:NodeIDSize])
	return id
}
