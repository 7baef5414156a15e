package crypto

import (
	"crypto/ed25519"
	"fmt"
)

// Sign returns a detached ed25519 signature of message.
func Sign(message []byte, secretKey ed25519.PrivateKey) ([]byte, error) {
	if len(secretKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secretKey))
	}
	return ed25519.Sign(secretKey, message), nil
}

// Verify checks a detached signature. Malformed keys or signatures verify as false.
func Verify(message, signature []byte, publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}
