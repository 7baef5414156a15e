package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/scrypt"
)

// Параметры scrypt. Это часть протокола, а не настройка: любое изменение
// делает невозможным вывод ранее созданных ключей.
const (
	// ScryptN - CPU/memory cost
	ScryptN = 1 << 14
	// ScryptR - размер блока
	ScryptR = 8
	// ScryptP - параллелизм
	ScryptP = 1
	// ScryptKeyLen - 32 байта boot key + 32 байта seed для box key pair
	ScryptKeyLen = 64
	// KeySize - размер симметричного ключа и ключей X25519
	KeySize = 32
	// SaltSize - размер соли в байтах
	SaltSize = 32
)

// KeyPair is an X25519 (nacl/box) key pair.
type KeyPair struct {
	PublicKey [KeySize]byte
	SecretKey [KeySize]byte
}

// SigningKeyPair is an ed25519 key pair used for detached signatures.
type SigningKeyPair struct {
	PublicKey ed25519.PublicKey
	SecretKey ed25519.PrivateKey
}

// AccountKeys are the keys derived from (username, passphrase, salt).
type AccountKeys struct {
	AuthKeyPair KeyPair
	BootKey     [KeySize]byte
}

// GenerateSalt генерирует криптографически случайную соль указанного размера
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// NewKey returns a fresh random symmetric key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// DeriveAccountKeys выводит boot key и auth key pair из пароля.
//
// Пароль сначала хешируется BLAKE2s с персонализацией, чтобы ограничить
// размер входа scrypt; солью scrypt служит username || salt.
// Результат детерминирован для одной и той же тройки входных данных.
func DeriveAccountKeys(username, passphrase string, salt []byte) (*AccountKeys, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	prehashed, err := PrehashPassphrase(passphrase)
	if err != nil {
		return nil, err
	}

	kdfSalt := make([]byte, 0, len(username)+len(salt))
	kdfSalt = append(kdfSalt, username...)
	kdfSalt = append(kdfSalt, salt...)

	derived, err := scrypt.Key(prehashed[:], kdfSalt, ScryptN, ScryptR, ScryptP, ScryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt failed: %w", err)
	}

	keys := &AccountKeys{}
	copy(keys.BootKey[:], derived[:KeySize])

	keys.AuthKeyPair, err = BoxKeyPairFromSecret(derived[KeySize:])
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// DeriveAccountKeysFromBase64Salt генерирует ключи из Base64-кодированной соли
func DeriveAccountKeysFromBase64Salt(username, passphrase, saltBase64 string) (*AccountKeys, error) {
	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	return DeriveAccountKeys(username, passphrase, salt)
}

// BoxKeyPairFromSecret rebuilds a box key pair from its 32-byte secret.
func BoxKeyPairFromSecret(secret []byte) (KeyPair, error) {
	var kp KeyPair
	if len(secret) != KeySize {
		return kp, fmt.Errorf("box secret key must be %d bytes, got %d", KeySize, len(secret))
	}

	pub, err := curve25519.X25519(secret, curve25519.Basepoint)
	if err != nil {
		return kp, fmt.Errorf("failed to compute public key: %w", err)
	}

	copy(kp.SecretKey[:], secret)
	copy(kp.PublicKey[:], pub)
	return kp, nil
}

// GenerateBoxKeyPair returns a random box key pair.
func GenerateBoxKeyPair() (KeyPair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate box key pair: %w", err)
	}
	return KeyPair{PublicKey: *pub, SecretKey: *sec}, nil
}

// GenerateSigningKeyPair returns a random ed25519 key pair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key pair: %w", err)
	}
	return &SigningKeyPair{PublicKey: pub, SecretKey: sec}, nil
}
