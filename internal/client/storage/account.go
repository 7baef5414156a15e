package storage

import (
	"context"
)

//go:generate moq -out account_mock.go . AccountStorage

// AccountStorage stores the local account record of this device.
// The record holds no key material: keys are re-derived from the passphrase.
type AccountStorage interface {
	// SaveAccount stores the account record
	SaveAccount(ctx context.Context, account *Account) error

	// GetAccount returns ErrAccountNotFound if no account exists
	GetAccount(ctx context.Context) (*Account, error)

	// DeleteAccount removes the account record
	DeleteAccount(ctx context.Context) error

	// IsAuthenticated checks if a server token exists and has not expired
	IsAuthenticated(ctx context.Context) (bool, error)
}

// Account is the per-device account record.
type Account struct {
	Username  string `cbor:"1,keyasint" json:"username"`
	ServerURL string `cbor:"2,keyasint" json:"server_url"`
	Token     string `cbor:"3,keyasint" json:"token"`
	Salt      []byte `cbor:"4,keyasint" json:"salt"`
	ExpiresAt int64  `cbor:"5,keyasint" json:"expires_at"` // unix seconds, 0 = без срока
}
