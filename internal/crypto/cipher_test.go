package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/errs"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	for _, size := range []int{0, 1, 15, 16, 17, 1024, 64*1024 + 3} {
		plaintext := make([]byte, size)
		_, _ = rand.Read(plaintext)

		frame, err := Encrypt(plaintext, key)
		require.NoError(t, err)
		assert.Len(t, frame, size+FrameOverhead)
		assert.Equal(t, make([]byte, 16), frame[:16], "legacy zero prefix")

		decrypted, err := Decrypt(frame, key)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plaintext, decrypted), "size %d", size)
	}
}

func TestEncrypt_NonceIsTrailing(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	var nonce [NonceSize]byte
	for i := range nonce {
		nonce[i] = byte(i)
	}

	frame, err := EncryptWithNonce([]byte("hello"), key, nonce, true)
	require.NoError(t, err)
	assert.Equal(t, nonce[:], frame[len(frame)-NonceSize:])

	bare, err := EncryptWithNonce([]byte("hello"), key, nonce, false)
	require.NoError(t, err)
	assert.Equal(t, frame[:len(frame)-NonceSize], bare)

	plain, err := DecryptWithNonce(bare, key, nonce)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plain)
}

func TestDecrypt_Errors(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)
	frame, err := Encrypt([]byte("test message"), key)
	require.NoError(t, err)

	corrupted := append([]byte{}, frame...)
	corrupted[40] ^= 0x01

	tests := []struct {
		name  string
		frame []byte
		key   []byte
	}{
		{name: "too short", frame: make([]byte, FrameOverhead-1), key: key},
		{name: "invalid key length", frame: frame, key: make([]byte, 16)},
		{name: "wrong key", frame: frame, key: make([]byte, KeySize)},
		{name: "corrupted data", frame: corrupted, key: key},
		{name: "truncated", frame: frame[:len(frame)-1], key: key},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plain, err := Decrypt(tt.frame, tt.key)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrDecryption)
			assert.Nil(t, plain)
		})
	}
}

func TestEncrypt_InvalidKey(t *testing.T) {
	frame, err := Encrypt([]byte("x"), make([]byte, 31))
	assert.ErrorIs(t, err, errs.ErrEncryption)
	assert.Nil(t, frame)
}

func TestAsymmetric_RoundTrip(t *testing.T) {
	alice, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	bob, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	eve, err := GenerateBoxKeyPair()
	require.NoError(t, err)

	nonce, err := NextGeneralNonce()
	require.NoError(t, err)

	c := EncryptAsymmetric([]byte("for bob"), nonce, bob.PublicKey, alice.SecretKey)

	m, err := DecryptAsymmetric(c, nonce, alice.PublicKey, bob.SecretKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("for bob"), m)

	m, err = DecryptAsymmetric(c, nonce, alice.PublicKey, eve.SecretKey)
	assert.ErrorIs(t, err, errs.ErrDecryption)
	assert.Nil(t, m)
}

func TestSharedKey_Symmetric(t *testing.T) {
	alice, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	bob, err := GenerateBoxKeyPair()
	require.NoError(t, err)

	k1 := SharedKey(bob.PublicKey, alice.SecretKey)
	k2 := SharedKey(alice.PublicKey, bob.SecretKey)
	assert.Equal(t, k1, k2)

	frame, err := Encrypt([]byte("shared"), k1)
	require.NoError(t, err)
	plain, err := Decrypt(frame, k2)
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), plain)
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	require.NoError(t, err)

	sig, err := Sign([]byte("message"), kp.SecretKey)
	require.NoError(t, err)

	assert.True(t, Verify([]byte("message"), sig, kp.PublicKey))
	assert.False(t, Verify([]byte("messagf"), sig, kp.PublicKey))
	assert.False(t, Verify([]byte("message"), sig[:10], kp.PublicKey))

	_, err = Sign([]byte("message"), kp.SecretKey[:5])
	assert.Error(t, err)
}
