package storage

import "errors"

// Common client storage errors
var (
	// ErrNotFound indicates that no value is stored under the key
	ErrNotFound = errors.New("key not found")

	// ErrAccountNotFound indicates that no account has been set up on this device
	ErrAccountNotFound = errors.New("account not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
