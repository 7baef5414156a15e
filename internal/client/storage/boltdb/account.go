package boltdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/kegkeeper/internal/client/storage"
)

var accountKey = []byte("current")

var _ storage.AccountStorage = (*Storage)(nil)

// SaveAccount stores the account record
func (s *Storage) SaveAccount(ctx context.Context, account *storage.Account) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	data, err := encMode.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAccount)
		if bucket == nil {
			return fmt.Errorf("account bucket not found")
		}
		if err := bucket.Put(accountKey, data); err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
		return nil
	})
}

// GetAccount retrieves the stored account record
func (s *Storage) GetAccount(ctx context.Context) (*storage.Account, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var account *storage.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAccount)
		if bucket == nil {
			return fmt.Errorf("account bucket not found")
		}

		data := bucket.Get(accountKey)
		if data == nil {
			return storage.ErrAccountNotFound
		}

		account = &storage.Account{}
		if err := decMode.Unmarshal(data, account); err != nil {
			return fmt.Errorf("failed to unmarshal account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// DeleteAccount removes the account record
func (s *Storage) DeleteAccount(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAccount)
		if bucket == nil {
			return fmt.Errorf("account bucket not found")
		}

		// Проверяем существование данных
		if bucket.Get(accountKey) == nil {
			return storage.ErrAccountNotFound
		}

		if err := bucket.Delete(accountKey); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
}

// IsAuthenticated checks if an unexpired token is stored
func (s *Storage) IsAuthenticated(ctx context.Context) (bool, error) {
	account, err := s.GetAccount(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}

	if account.Token == "" {
		return false, nil
	}
	if account.ExpiresAt != 0 && time.Now().After(time.Unix(account.ExpiresAt, 0)) {
		return false, nil
	}

	return true, nil
}
