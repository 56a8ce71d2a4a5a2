package crypto

import (
	"crypto/sha256"

	"lukechampine.com/blake3"
)

// SHA256 returns the 32-byte SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// BLAKE3 returns the 32-byte BLAKE3 digest of data.
func BLAKE3(data []byte) [32]byte {
	return blake3.Sum256(data)
}
