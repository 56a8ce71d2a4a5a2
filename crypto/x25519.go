package crypto

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/katzenpost/strand/errs"
)

const X25519KeySize = 32

// EphemeralKeyPair is an X25519 scalar/point pair, drawn fresh for every
// handshake. Never reuse a deterministic PRNG across connections.
type EphemeralKeyPair struct {
	Secret [X25519KeySize]byte
	Public [X25519KeySize]byte
}

// GenerateEphemeralKeyPair draws a new X25519 keypair from an OS
// cryptographic RNG.
func GenerateEphemeralKeyPair() (*EphemeralKeyPair, error) {
	var secret [X25519KeySize]byte
	if _, err := io.ReadFull(rand.Reader, secret[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	kp := &EphemeralKeyPair{Secret: secret}
	copy(kp.Public[:], pub)
	return kp, nil
}

// DiffieHellman computes the X25519 shared secret between k.Secret and
// peerPublic.
func (k *EphemeralKeyPair) DiffieHellman(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != X25519KeySize {
		return nil, errs.ErrInvalidKey
	}
	shared, err := curve25519.X25519(k.Secret[:], peerPublic)
	if err != nil {
		return nil, errs.ErrInvalidKey
	}
	return shared, nil
}
