package storage

import "context"

//go:generate moq -out engine_mock.go . Engine

// Well-known engine keys.
const (
	// KeyDigest holds the cached digest snapshot.
	KeyDigest = "DIGEST"
	// UploadMarkerPrefix prefixes markers of unfinished uploads: UPLOAD:<fileId>.
	UploadMarkerPrefix = "UPLOAD:"
	// DownloadMarkerPrefix prefixes markers of unfinished downloads: DOWNLOAD:<fileId>.
	DownloadMarkerPrefix = "DOWNLOAD:"
)

// Engine is a small persistent key-value store. Values are encoded by the
// implementation; v in Get must be a pointer.
type Engine interface {
	// Get decodes the value stored under key into v.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string, v any) error

	// Set stores v under key, replacing any previous value.
	Set(ctx context.Context, key string, v any) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every key starting with prefix, in byte order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
