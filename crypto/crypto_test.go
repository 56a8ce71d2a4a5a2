package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEd25519SignVerify(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	require.NoError(t, err)

	msg := []byte("hello world")
	sig := kp.Sign(msg)
	require.True(t, Verify(kp.Public, msg, sig))

	sig[0] ^= 0xFF
	require.False(t, Verify(kp.Public, msg, sig))
}

func TestNodeIDDerivation(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	require.NoError(t, err)
	id1 := NodeID(kp.Public)
	id2 := NodeID(kp.Public)
	require.Equal(t, id1, id2)
}

func TestX25519DiffieHellmanAgreement(t *testing.T) {
	a, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	b, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	sharedA, err := a.DiffieHellman(b.Public[:])
	require.NoError(t, err)
	sharedB, err := b.DiffieHellman(a.Public[:])
	require.NoError(t, err)
	require.Equal(t, sharedA, sharedB)
}

func TestAEADRoundTripBothSuites(t *testing.T) {
	for _, suite := range []CipherSuite{SuiteAES256GCM, SuiteChaCha20Poly1305} {
		key := make([]byte, AEADKeySize)
		nonce := make([]byte, AEADNonceSize)
		for i := range key {
			key[i] = byte(i)
		}
		plaintext := []byte("the quick brown fox")
		aad := []byte("aad")

		ct, err := Seal(suite, key, nonce, plaintext, aad)
		require.NoError(t, err)

		pt, err := Open(suite, key, nonce, ct, aad)
		require.NoError(t, err)
		require.Equal(t, plaintext, pt)

		// mutate ciphertext
		bad := append([]byte(nil), ct...)
		bad[0] ^= 0xFF
		_, err = Open(suite, key, nonce, bad, aad)
		require.Error(t, err)

		// mutate aad
		_, err = Open(suite, key, nonce, ct, []byte("wrong"))
		require.Error(t, err)

		// mutate key
		badKey := append([]byte(nil), key...)
		badKey[0] ^= 0xFF
		_, err = Open(suite, badKey, nonce, ct, aad)
		require.Error(t, err)

		// mutate nonce
		badNonce := append([]byte(nil), nonce...)
		badNonce[0] ^= 0xFF
		_, err = Open(suite, key, badNonce, ct, aad)
		require.Error(t, err)
	}
}

func TestHKDFDeterministic(t *testing.T) {
	prk := HKDFExtract(make([]byte, 32), []byte("ikm"))
	k1, err := HKDFExpand(prk, []byte("label"), 32)
	require.NoError(t, err)
	k2, err := HKDFExpand(prk, []byte("label"), 32)
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := HKDFExpand(prk, []byte("other label"), 32)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}

func TestHashFunctions(t *testing.T) {
	data := []byte("strand")
	h1 := SHA256(data)
	h2 := SHA256(data)
	require.Equal(t, h1, h2)

	b1 := BLAKE3(data)
	b2 := BLAKE3(data)
	require.Equal(t, b1, b2)
	require.NotEqual(t, h1[:], b1[:])
}
