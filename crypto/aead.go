package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/katzenpost/strand/errs"
)

// CipherSuite identifies an AEAD algorithm by its wire id.
type CipherSuite uint16

const (
	SuiteAES256GCM        CipherSuite = 0x0001
	SuiteChaCha20Poly1305 CipherSuite = 0x0002

	AEADKeySize   = 32
	AEADNonceSize = 12
	AEADTagSize   = 16
)

func newAEAD(suite CipherSuite, key []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, errs.ErrInvalidKey
	}
	switch suite {
	case SuiteChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, errs.ErrInvalidKey
	}
}

// Seal encrypts plaintext under key/nonce/aad using suite, appending a
// 16-byte tag.
func Seal(suite CipherSuite, key, nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != AEADNonceSize {
		return nil, errs.ErrEncryption
	}
	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext (which includes the trailing tag) under
// key/nonce/aad using suite. Any tag mismatch returns errs.ErrDecryption.
func Open(suite CipherSuite, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != AEADNonceSize {
		return nil, errs.ErrDecryption
	}
	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errs.ErrDecryption
	}
	return plaintext, nil
}
