package storage

import (
	"context"

	"github.com/iudanet/kegkeeper/pkg/api"
)

// DigestLine is the state of one (collection, type) pair for one user.
type DigestLine struct {
	DbID         string
	Type         string
	MaxVersion   int64
	KnownVersion int64
	NewKegs      int
}

// KegStorage defines interface for keg persistence.
// Collection ids passed here are internal ids: the SELF alias is resolved
// by ResolveDB beforehand.
type KegStorage interface {
	// ResolveDB maps the id a client used to the internal collection id and
	// checks that username may access it. With create set an unknown
	// collection is created and owned by username.
	ResolveDB(ctx context.Context, username, kegDbID string, create bool) (string, error)

	// OwnedDBs lists every collection the user owns, the private one first.
	OwnedDBs(ctx context.Context, username string) ([]string, error)

	// CreateKeg stores an empty keg with version 1.
	// Returns ErrKegExists if the id is taken.
	CreateKeg(ctx context.Context, dbID, kegID, kegType, owner string) (*api.CreateKegResponse, error)

	// UpdateKeg stores a new version. Returns ErrVersionConflict unless
	// req.Version is exactly the stored version + 1.
	UpdateKeg(ctx context.Context, dbID string, req *api.UpdateKegRequest) (*api.UpdateKegResponse, error)

	// GetKeg returns ErrKegNotFound for missing and deleted kegs.
	GetKeg(ctx context.Context, dbID, kegID string) (*api.Keg, error)

	// DeleteKeg tombstones the keg and bumps the collection version.
	DeleteKeg(ctx context.Context, dbID, kegID string) error

	// ListKegs returns live kegs of a type newer than minVersion.
	ListKegs(ctx context.Context, dbID, kegType string, minVersion int64) ([]api.Keg, error)

	// Digest reports every type present in the given collections.
	Digest(ctx context.Context, username string, dbIDs []string) ([]DigestLine, error)

	// SetKnownVersion records what username has acknowledged. The stored
	// value never goes backwards.
	SetKnownVersion(ctx context.Context, username, dbID, kegType string, version int64) error
}
