package crypto

import (
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/iudanet/kegkeeper/internal/errs"
)

const (
	// NonceSize - размер nonce для secretbox/box
	NonceSize = 24

	// boxZeroBytes - нулевой префикс, который legacy-клиенты оставляют перед тегом
	boxZeroBytes = 16

	// ChunkOverhead is what encryption adds to a chunk that does not carry its nonce:
	// 16 zero bytes plus the 16-byte Poly1305 tag.
	ChunkOverhead = boxZeroBytes + secretbox.Overhead

	// FrameOverhead is the full frame overhead: ChunkOverhead plus the trailing nonce.
	FrameOverhead = ChunkOverhead + NonceSize
)

// Encrypt шифрует данные secretbox с новым general nonce.
// Формат результата: [16 нулевых байт][tag 16][ciphertext][nonce 24]
func Encrypt(plaintext, key []byte) ([]byte, error) {
	nonce, err := NextGeneralNonce()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	return EncryptWithNonce(plaintext, key, nonce, true)
}

// EncryptWithNonce шифрует данные заданным nonce. Если appendNonce == false,
// nonce не дописывается в конец (так шифруются чанки файлов: nonce
// восстанавливается из счетчика).
func EncryptWithNonce(plaintext, key []byte, nonce [NonceSize]byte, appendNonce bool) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", errs.ErrEncryption, KeySize, len(key))
	}

	size := ChunkOverhead + len(plaintext)
	if appendNonce {
		size += NonceSize
	}

	out := make([]byte, boxZeroBytes, size)
	out = secretbox.Seal(out, plaintext, &nonce, (*[KeySize]byte)(key))
	if appendNonce {
		out = append(out, nonce[:]...)
	}
	return out, nil
}

// Decrypt дешифрует фрейм, созданный Encrypt. Nonce берется из последних 24 байт.
func Decrypt(frame, key []byte) ([]byte, error) {
	if len(frame) < FrameOverhead {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", errs.ErrDecryption, len(frame))
	}

	var nonce [NonceSize]byte
	copy(nonce[:], frame[len(frame)-NonceSize:])

	return DecryptWithNonce(frame[:len(frame)-NonceSize], key, nonce)
}

// DecryptWithNonce дешифрует фрейм без nonce в конце.
func DecryptWithNonce(cipher, key []byte, nonce [NonceSize]byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", errs.ErrDecryption, KeySize, len(key))
	}
	if len(cipher) < ChunkOverhead {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", errs.ErrDecryption, len(cipher))
	}

	plaintext, ok := secretbox.Open(nil, cipher[boxZeroBytes:], &nonce, (*[KeySize]byte)(key))
	if !ok {
		return nil, fmt.Errorf("%w: authentication failed or corrupted data", errs.ErrDecryption)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
