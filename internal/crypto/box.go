package crypto

import (
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/iudanet/kegkeeper/internal/errs"
)

// EncryptAsymmetric encrypts m for theirPublicKey with nacl/box.
func EncryptAsymmetric(m []byte, nonce [NonceSize]byte, theirPublicKey, mySecretKey [KeySize]byte) []byte {
	return box.Seal(nil, m, &nonce, &theirPublicKey, &mySecretKey)
}

// DecryptAsymmetric opens a box produced by EncryptAsymmetric.
// Authentication failure is an error, never an empty result.
func DecryptAsymmetric(cipher []byte, nonce [NonceSize]byte, theirPublicKey, mySecretKey [KeySize]byte) ([]byte, error) {
	if len(cipher) < box.Overhead {
		return nil, fmt.Errorf("%w: box too short (%d bytes)", errs.ErrDecryption, len(cipher))
	}

	m, ok := box.Open(nil, cipher, &nonce, &theirPublicKey, &mySecretKey)
	if !ok {
		return nil, fmt.Errorf("%w: box authentication failed", errs.ErrDecryption)
	}
	if m == nil {
		m = []byte{}
	}
	return m, nil
}

// SharedKey precomputes the box key between two parties. The result is a
// regular secretbox key, usable with Encrypt/Decrypt.
func SharedKey(theirPublicKey, mySecretKey [KeySize]byte) []byte {
	var shared [KeySize]byte
	box.Precompute(&shared, &theirPublicKey, &mySecretKey)
	return shared[:]
}
