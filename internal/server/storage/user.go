package storage

import (
	"context"

	"github.com/iudanet/kegkeeper/internal/models"
)

// UserStorage keeps the server's view of an account: the username from the
// access token and the id of the user's private collection.
type UserStorage interface {
	// EnsureUser returns the user, creating it together with its private
	// collection on first sight.
	EnsureUser(ctx context.Context, username string) (*models.User, error)

	// GetUser returns ErrUserNotFound for unknown usernames.
	GetUser(ctx context.Context, username string) (*models.User, error)
}
