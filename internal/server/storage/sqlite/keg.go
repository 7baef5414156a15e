package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/iudanet/kegkeeper/internal/server/storage"
	"github.com/iudanet/kegkeeper/pkg/api"
)

const kegColumns = `db_id, keg_id, type, owner, key_id, signature, signed_by,
	props, payload, version, format, collection_version, deleted`

// ResolveDB maps a client collection id to the internal one.
func (s *Storage) ResolveDB(ctx context.Context, username, kegDbID string, create bool) (string, error) {
	if kegDbID == "" || kegDbID == api.SelfKegDbID {
		user, err := s.EnsureUser(ctx, username)
		if err != nil {
			return "", err
		}
		return user.SelfDbID, nil
	}

	if create {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO keg_dbs (id, owner, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			kegDbID, username, s.now().UTC(),
		); err != nil {
			return "", fmt.Errorf("failed to create keg db: %w", err)
		}
	}

	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT owner FROM keg_dbs WHERE id = ?`, kegDbID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrKegDbNotFound
		}
		return "", fmt.Errorf("failed to get keg db: %w", err)
	}
	if owner != username {
		return "", storage.ErrAccessForbidden
	}
	return kegDbID, nil
}

// OwnedDBs lists the user's collections, the private one first.
func (s *Storage) OwnedDBs(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id FROM keg_dbs d
		LEFT JOIN users u ON u.self_db_id = d.id
		WHERE d.owner = ?
		ORDER BY u.username IS NULL, d.created_at, d.id`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query keg dbs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan keg db: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// bump advances the collection's update counter and returns the new value.
func (s *Storage) bump(ctx context.Context, tx *sql.Tx, dbID string) (int64, error) {
	var version int64
	err := tx.QueryRowContext(ctx,
		`UPDATE keg_dbs SET update_counter = update_counter + 1 WHERE id = ? RETURNING update_counter`,
		dbID,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrKegDbNotFound
		}
		return 0, fmt.Errorf("failed to bump collection version: %w", err)
	}
	return version, nil
}

// CreateKeg stores an empty keg with version 1.
func (s *Storage) CreateKeg(ctx context.Context, dbID, kegID, kegType, owner string) (*api.CreateKegResponse, error) {
	var resp *api.CreateKegResponse
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM kegs WHERE db_id = ? AND keg_id = ?`, dbID, kegID,
		).Scan(&exists)
		if err == nil {
			return storage.ErrKegExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check keg: %w", err)
		}

		version, err := s.bump(ctx, tx, dbID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kegs (db_id, keg_id, type, owner, version, collection_version, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?)`,
			dbID, kegID, kegType, owner, version, s.now().UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert keg: %w", err)
		}

		resp = &api.CreateKegResponse{
			KegID:             kegID,
			Version:           1,
			CollectionVersion: formatVersion(version),
		}
		return nil
	})
	return resp, err
}

// UpdateKeg stores the next keg version.
func (s *Storage) UpdateKeg(ctx context.Context, dbID string, req *api.UpdateKegRequest) (*api.UpdateKegResponse, error) {
	props, err := encodeProps(req.Props)
	if err != nil {
		return nil, err
	}

	var resp *api.UpdateKegResponse
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			stored  int
			kegType string
			deleted bool
		)
		err := tx.QueryRowContext(ctx,
			`SELECT version, type, deleted FROM kegs WHERE db_id = ? AND keg_id = ?`,
			dbID, req.KegID,
		).Scan(&stored, &kegType, &deleted)
		if errors.Is(err, sql.ErrNoRows) || deleted {
			return storage.ErrKegNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get keg: %w", err)
		}
		if req.Type != "" && req.Type != kegType {
			return storage.ErrTypeMismatch
		}
		if req.Version != stored+1 {
			return fmt.Errorf("%w: stored %d, got %d", storage.ErrVersionConflict, stored, req.Version)
		}

		version, err := s.bump(ctx, tx, dbID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE kegs
			SET key_id = ?, signature = ?, signed_by = ?, props = ?, payload = ?,
			    version = ?, format = ?, collection_version = ?, updated_at = ?
			WHERE db_id = ? AND keg_id = ?`,
			req.KeyID, req.Signature, req.SignedBy, props, req.Payload,
			req.Version, req.Format, version, s.now().UTC(),
			dbID, req.KegID,
		); err != nil {
			return fmt.Errorf("failed to update keg: %w", err)
		}

		resp = &api.UpdateKegResponse{
			Version:           req.Version,
			CollectionVersion: formatVersion(version),
		}
		return nil
	})
	return resp, err
}

// GetKeg returns a live keg.
func (s *Storage) GetKeg(ctx context.Context, dbID, kegID string) (*api.Keg, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+kegColumns+` FROM kegs WHERE db_id = ? AND keg_id = ?`,
		dbID, kegID,
	)
	k, err := scanKeg(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrKegNotFound
		}
		return nil, fmt.Errorf("failed to get keg: %w", err)
	}
	if k.Deleted {
		return nil, storage.ErrKegNotFound
	}
	return k, nil
}

// DeleteKeg tombstones a keg.
func (s *Storage) DeleteKeg(ctx context.Context, dbID, kegID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var deleted bool
		err := tx.QueryRowContext(ctx,
			`SELECT deleted FROM kegs WHERE db_id = ? AND keg_id = ?`, dbID, kegID,
		).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) || deleted {
			return storage.ErrKegNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get keg: %w", err)
		}

		version, err := s.bump(ctx, tx, dbID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE kegs
			SET deleted = 1, payload = NULL, props = NULL, collection_version = ?, updated_at = ?
			WHERE db_id = ? AND keg_id = ?`,
			version, s.now().UTC(), dbID, kegID,
		); err != nil {
			return fmt.Errorf("failed to delete keg: %w", err)
		}
		return nil
	})
}

// ListKegs returns live kegs of a type, oldest update first.
func (s *Storage) ListKegs(ctx context.Context, dbID, kegType string, minVersion int64) ([]api.Keg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+kegColumns+` FROM kegs
		WHERE db_id = ? AND type = ? AND deleted = 0 AND collection_version > ?
		ORDER BY collection_version`,
		dbID, kegType, minVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query kegs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	kegs := make([]api.Keg, 0)
	for rows.Next() {
		k, err := scanKeg(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keg: %w", err)
		}
		kegs = append(kegs, *k)
	}
	return kegs, rows.Err()
}

// Digest reports, per type, the newest collection version and what username
// has acknowledged.
func (s *Storage) Digest(ctx context.Context, username string, dbIDs []string) ([]storage.DigestLine, error) {
	var lines []storage.DigestLine
	for _, dbID := range dbIDs {
		rows, err := s.db.QueryContext(ctx, `
			SELECT k.type, MAX(k.collection_version), COALESCE(kv.version, 0),
			       SUM(CASE WHEN k.deleted = 0 AND k.collection_version > COALESCE(kv.version, 0) THEN 1 ELSE 0 END)
			FROM kegs k
			LEFT JOIN known_versions kv
			       ON kv.db_id = k.db_id AND kv.type = k.type AND kv.username = ?
			WHERE k.db_id = ?
			GROUP BY k.type, kv.version
			ORDER BY k.type`,
			username, dbID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query digest: %w", err)
		}

		for rows.Next() {
			line := storage.DigestLine{DbID: dbID}
			if err := rows.Scan(&line.Type, &line.MaxVersion, &line.KnownVersion, &line.NewKegs); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan digest: %w", err)
			}
			lines = append(lines, line)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

// SetKnownVersion records an acknowledgement; older values are ignored.
func (s *Storage) SetKnownVersion(ctx context.Context, username, dbID, kegType string, version int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO known_versions (username, db_id, type, version) VALUES (?, ?, ?, ?)
		ON CONFLICT(username, db_id, type) DO UPDATE SET version = max(version, excluded.version)`,
		username, dbID, kegType, version,
	)
	if err != nil {
		return fmt.Errorf("failed to set known version: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeg(row rowScanner) (*api.Keg, error) {
	var (
		k          api.Keg
		props      []byte
		collection int64
	)
	if err := row.Scan(
		&k.KegDbID, &k.KegID, &k.Type, &k.Owner, &k.KeyID, &k.Signature, &k.SignedBy,
		&props, &k.Payload, &k.Version, &k.Format, &collection, &k.Deleted,
	); err != nil {
		return nil, err
	}
	k.CollectionVersion = formatVersion(collection)
	if len(props) > 0 {
		if err := json.Unmarshal(props, &k.Props); err != nil {
			return nil, fmt.Errorf("corrupt props of keg %s: %w", k.KegID, err)
		}
	}
	return &k, nil
}

func encodeProps(props map[string]json.RawMessage) ([]byte, error) {
	if len(props) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to encode props: %w", err)
	}
	return data, nil
}

func formatVersion(v int64) string {
	return strconv.FormatInt(v, 10)
}
