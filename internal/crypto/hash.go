package crypto

import (
	"fmt"

	"github.com/dchest/blake2s"
)

// passphrasePersonalization - персонализация BLAKE2s для pre-hash пароля.
const passphrasePersonalization = "PeerioPH"

// PrehashPassphrase хеширует пароль BLAKE2s-256 с персонализацией.
// Используется перед scrypt, чтобы длинный пароль не влиял на стоимость KDF.
func PrehashPassphrase(passphrase string) ([32]byte, error) {
	var out [32]byte

	h, err := blake2s.New(&blake2s.Config{
		Size:   32,
		Person: []byte(passphrasePersonalization),
	})
	if err != nil {
		return out, fmt.Errorf("failed to init blake2s: %w", err)
	}

	h.Write([]byte(passphrase))
	copy(out[:], h.Sum(nil))
	return out, nil
}
