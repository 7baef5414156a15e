package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/pkg/api"
)

type memStream struct {
	*bytes.Reader
}

func (memStream) Close() error { return nil }

func newMemStream(data []byte) memStream {
	return memStream{Reader: bytes.NewReader(data)}
}

// chunkStore collects uploaded chunks by number.
type chunkStore struct {
	chunks map[int][]byte
	last   map[int]bool
	mu     sync.Mutex
}

func newChunkStore() *chunkStore {
	return &chunkStore{chunks: make(map[int][]byte), last: make(map[int]bool)}
}

func (s *chunkStore) put(req api.ChunkUploadRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[req.ChunkNum] = bytes.Clone(req.Chunk)
	if req.Last {
		s.last[req.ChunkNum] = true
	}
}

func (s *chunkStore) sender() *ChunkSenderMock {
	return &ChunkSenderMock{
		SendChunkFunc: func(ctx context.Context, req api.ChunkUploadRequest) error {
			s.put(req)
			return nil
		},
	}
}

// blob concatenates chunks 0..n-1 in order.
func (s *chunkStore) blob(t *testing.T, n int) []byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for i := range n {
		c, ok := s.chunks[i]
		require.True(t, ok, "chunk %d missing", i)
		out = append(out, c...)
	}
	return out
}

func blobFetcher(blob []byte) *RangeFetcherMock {
	return &RangeFetcherMock{
		FetchRangeFunc: func(ctx context.Context, fileID string, start, end int64) ([]byte, error) {
			return bytes.Clone(blob[start:end]), nil
		},
	}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func testFile(t *testing.T, size, chunkSize int) (models.FileInfo, []byte) {
	t.Helper()
	key, err := crypto.NewKey()
	require.NoError(t, err)
	seed, err := crypto.NewNonceSeed()
	require.NoError(t, err)
	return models.FileInfo{
		FileID:    "file-1",
		Name:      "test.bin",
		Key:       key,
		NonceSeed: seed,
		Size:      int64(size),
		ChunkSize: chunkSize,
	}, randomBytes(t, size)
}

func smallConfig() Config {
	return Config{
		EncryptBufferBytes:   64,
		UploadBufferBytes:    64,
		DecryptBufferBytes:   128,
		MaxInFlightChunks:    2,
		DownloadWindowChunks: 2,
	}
}
