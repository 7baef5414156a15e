package sqlite

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/server/storage"
)

// chunkOf builds the encrypted frame size the server expects for chunk num.
func chunkOf(num int, size int64, chunkSize int, fill byte) []byte {
	f := fileRow{size: size, chunkSize: chunkSize}
	n := int64(chunkSize) + crypto.ChunkOverhead
	if num == f.chunkCount()-1 {
		n = f.encryptedSize() - int64(num)*n
	}
	return bytes.Repeat([]byte{fill}, int(n))
}

func TestFileStorage_Upload(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	// 40 байт по 16: три чанка 48+48+40
	id, err := s.StartUpload(ctx, "alice", 40, 16)
	require.NoError(t, err)

	status, err := s.UploadStatus(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, &storage.FileStatus{LastChunkNum: -1}, status)

	// не по порядку: статус видит только непрерывный префикс
	require.NoError(t, s.PutChunk(ctx, "alice", id, 1, chunkOf(1, 40, 16, 'b'), false))
	status, err = s.UploadStatus(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, -1, status.LastChunkNum)

	require.NoError(t, s.PutChunk(ctx, "alice", id, 0, chunkOf(0, 40, 16, 'a'), false))
	// повторная отправка заменяет чанк
	require.NoError(t, s.PutChunk(ctx, "alice", id, 0, chunkOf(0, 40, 16, 'a'), false))
	status, err = s.UploadStatus(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, &storage.FileStatus{LastChunkNum: 1}, status)

	_, err = s.ReadRange(ctx, id, 0, 136)
	assert.ErrorIs(t, err, storage.ErrRangeNotSatisfiable)

	require.NoError(t, s.PutChunk(ctx, "alice", id, 2, chunkOf(2, 40, 16, 'c'), true))
	status, err = s.UploadStatus(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, &storage.FileStatus{LastChunkNum: 2, Finished: true}, status)

	assert.ErrorIs(t, s.PutChunk(ctx, "alice", id, 2, chunkOf(2, 40, 16, 'c'), true), storage.ErrFileFinished)

	blob, err := s.ReadRange(ctx, id, 0, 136)
	require.NoError(t, err)
	want := append(append(chunkOf(0, 40, 16, 'a'), chunkOf(1, 40, 16, 'b')...), chunkOf(2, 40, 16, 'c')...)
	assert.Equal(t, want, blob)

	// диапазон через границу чанков
	part, err := s.ReadRange(ctx, id, 40, 100)
	require.NoError(t, err)
	assert.Equal(t, want[40:100], part)

	part, err = s.ReadRange(ctx, id, 5, 5)
	require.NoError(t, err)
	assert.Empty(t, part)

	used, err := s.UsedBytes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(136), used)
}

func TestFileStorage_Errors(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	id, err := s.StartUpload(ctx, "alice", 40, 16)
	require.NoError(t, err)

	tests := []struct {
		wantErr error
		name    string
		owner   string
		fileID  string
		data    []byte
		num     int
		last    bool
	}{
		{name: "unknown file", owner: "alice", fileID: "nope", data: chunkOf(0, 40, 16, 0), wantErr: storage.ErrFileNotFound},
		{name: "foreign file", owner: "bob", fileID: id, data: chunkOf(0, 40, 16, 0), wantErr: storage.ErrAccessForbidden},
		{name: "chunk out of range", owner: "alice", fileID: id, num: 3, data: chunkOf(0, 40, 16, 0), wantErr: storage.ErrInvalidChunk},
		{name: "wrong last flag", owner: "alice", fileID: id, num: 1, last: true, data: chunkOf(1, 40, 16, 0), wantErr: storage.ErrInvalidChunk},
		{name: "wrong size", owner: "alice", fileID: id, num: 0, data: []byte{1, 2, 3}, wantErr: storage.ErrInvalidChunk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.PutChunk(ctx, tt.owner, tt.fileID, tt.num, tt.data, tt.last)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = s.UploadStatus(ctx, "bob", id)
	assert.ErrorIs(t, err, storage.ErrAccessForbidden)

	_, err = s.ReadRange(ctx, id, 10, 5)
	assert.ErrorIs(t, err, storage.ErrRangeNotSatisfiable)
	_, err = s.ReadRange(ctx, "nope", 0, 1)
	assert.ErrorIs(t, err, storage.ErrFileNotFound)
}

func TestFileStorage_EmptyFile(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	id, err := s.StartUpload(ctx, "alice", 0, 16)
	require.NoError(t, err)

	chunk := chunkOf(0, 0, 16, 'z')
	require.Len(t, chunk, crypto.ChunkOverhead)
	require.NoError(t, s.PutChunk(ctx, "alice", id, 0, chunk, true))

	status, err := s.UploadStatus(ctx, "alice", id)
	require.NoError(t, err)
	assert.True(t, status.Finished)

	blob, err := s.ReadRange(ctx, id, 0, crypto.ChunkOverhead)
	require.NoError(t, err)
	assert.Equal(t, chunk, blob)
}
