package storage

import "context"

// FileStatus describes how far a chunked upload got.
type FileStatus struct {
	// LastChunkNum is the end of the contiguous stored prefix, -1 if empty
	LastChunkNum int
	Finished     bool
}

// FileStorage defines interface for encrypted file blobs uploaded in chunks.
type FileStorage interface {
	// StartUpload reserves a file id. The chunk size is fixed from now on.
	StartUpload(ctx context.Context, owner string, size int64, chunkSize int) (string, error)

	// PutChunk stores one encrypted chunk. Storing the same chunk again
	// replaces it. Returns ErrAccessForbidden if owner did not start the upload.
	PutChunk(ctx context.Context, owner, fileID string, num int, data []byte, last bool) error

	// UploadStatus returns the contiguous stored prefix.
	UploadStatus(ctx context.Context, owner, fileID string) (*FileStatus, error)

	// ReadRange returns bytes [start, end) of the concatenated chunks.
	ReadRange(ctx context.Context, fileID string, start, end int64) ([]byte, error)

	// UsedBytes is the reserved encrypted size of all files of owner.
	UsedBytes(ctx context.Context, owner string) (int64, error)
}
