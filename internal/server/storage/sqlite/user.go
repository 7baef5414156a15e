package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/internal/server/storage"
)

// EnsureUser returns the user, creating it and its private collection on first use.
func (s *Storage) EnsureUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.GetUser(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return nil, err
	}

	user = &models.User{
		Username:  username,
		SelfDbID:  uuid.NewString(),
		CreatedAt: s.now().UTC(),
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO keg_dbs (id, owner, created_at) VALUES (?, ?, ?)`,
			user.SelfDbID, username, user.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert keg db: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, self_db_id, created_at) VALUES (?, ?, ?)`,
			user.Username, user.SelfDbID, user.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "username", username, "self_db_id", user.SelfDbID)
	return user, nil
}

// GetUser retrieves user by username
func (s *Storage) GetUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT username, self_db_id, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&user.Username, &user.SelfDbID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
