package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/pkg/api"
)

//go:generate moq -out chunk_sender_mock.go . ChunkSender

// ChunkSender transmits one encrypted chunk.
type ChunkSender interface {
	SendChunk(ctx context.Context, req api.ChunkUploadRequest) error
}

// ErrAlreadyStarted is returned when Start is called twice on one pipeline.
var ErrAlreadyStarted = errors.New("transfer already started")

type plainChunk struct {
	data []byte
	id   int
}

type cipherChunk struct {
	data  []byte
	id    int
	plain int
}

// Uploader encrypts a file chunk by chunk and sends it to the server.
// One Uploader runs once; resuming means a new Uploader started at the
// next chunk the server has not acknowledged.
type Uploader struct {
	stream   FileStream
	sender   ChunkSender
	logger   *slog.Logger
	cancel   context.CancelFunc
	onProg   func(models.TransferState)
	acked    map[int]int
	info     models.FileInfo
	cfg      Config
	state    models.TransferState
	mu       sync.Mutex
	finish   sync.Once
	started  bool
	canceled bool
}

// NewUploader prepares an upload of stream described by info.
func NewUploader(info models.FileInfo, stream FileStream, sender ChunkSender, cfg Config, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Uploader{
		info:   info,
		stream: stream,
		sender: sender,
		cfg:    cfg.withDefaults(),
		logger: logger.With("file_id", info.FileID),
		acked:  make(map[int]int),
	}
}

// OnProgress sets a callback invoked after every acknowledged chunk.
func (u *Uploader) OnProgress(fn func(models.TransferState)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onProg = fn
}

// State returns a snapshot of the progress.
func (u *Uploader) State() models.TransferState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Cancel stops the pipeline; Start returns errs.ErrUserCancel.
func (u *Uploader) Cancel() {
	u.mu.Lock()
	u.canceled = true
	cancel := u.cancel
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Start uploads chunks startChunkID..MaxChunkID and blocks until the
// pipeline finishes. The stream is positioned at startChunkID*ChunkSize
// and the nonce counter continues from startChunkID.
func (u *Uploader) Start(ctx context.Context, startChunkID int) error {
	if u.info.ChunkSize <= 0 {
		return fmt.Errorf("%w: file %s has no chunk size", errs.ErrEncryption, u.info.FileID)
	}
	maxChunk := u.info.MaxChunkID()
	if startChunkID < 0 || startChunkID > maxChunk {
		return fmt.Errorf("%w: start chunk %d out of range 0..%d", errs.ErrEncryption, startChunkID, maxChunk)
	}

	nonces, err := crypto.NewChunkNonceGenerator(uint32(startChunkID), uint32(maxChunk), u.info.NonceSeed)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}

	offset := int64(startChunkID) * int64(u.info.ChunkSize)
	if _, err := u.stream.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to chunk %d: %w", startChunkID, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u.mu.Lock()
	if u.started {
		u.mu.Unlock()
		return ErrAlreadyStarted
	}
	if u.canceled {
		u.mu.Unlock()
		return errs.ErrUserCancel
	}
	u.started = true
	u.cancel = cancel
	u.state = models.TransferState{ChunkID: startChunkID, BytesProcessed: offset}
	u.mu.Unlock()

	u.logger.Debug("upload started", "start_chunk", startChunkID, "max_chunk", maxChunk)

	g, gctx := errgroup.WithContext(ctx)
	encBudget := semaphore.NewWeighted(u.cfg.EncryptBufferBytes)
	upBudget := semaphore.NewWeighted(u.cfg.UploadBufferBytes)
	inFlight := semaphore.NewWeighted(int64(u.cfg.MaxInFlightChunks))

	plain := make(chan plainChunk, u.cfg.MaxInFlightChunks)
	sealed := make(chan cipherChunk, u.cfg.MaxInFlightChunks)

	// read
	g.Go(func() error {
		defer close(plain)
		for id := startChunkID; id <= maxChunk; id++ {
			n := u.chunkLen(id)
			if err := encBudget.Acquire(gctx, weight(n, u.cfg.EncryptBufferBytes)); err != nil {
				return err
			}
			buf := make([]byte, n)
			if _, err := io.ReadFull(u.stream, buf); err != nil {
				return fmt.Errorf("failed to read chunk %d: %w", id, err)
			}
			select {
			case plain <- plainChunk{id: id, data: buf}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// encrypt
	g.Go(func() error {
		defer close(sealed)
		for c := range plain {
			nonce, err := nonces.Next(c.id == maxChunk)
			if err != nil {
				return fmt.Errorf("%w: %w", errs.ErrEncryption, err)
			}
			data, err := crypto.EncryptWithNonce(c.data, u.info.Key, nonce, false)
			if err != nil {
				return err
			}
			encBudget.Release(weight(len(c.data), u.cfg.EncryptBufferBytes))

			if err := upBudget.Acquire(gctx, weight(len(data), u.cfg.UploadBufferBytes)); err != nil {
				return err
			}
			select {
			case sealed <- cipherChunk{id: c.id, data: data, plain: len(c.data)}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// send
	g.Go(func() error {
		for c := range sealed {
			if err := inFlight.Acquire(gctx, 1); err != nil {
				return err
			}
			g.Go(func() error {
				defer inFlight.Release(1)
				defer upBudget.Release(weight(len(c.data), u.cfg.UploadBufferBytes))

				err := u.sender.SendChunk(gctx, api.ChunkUploadRequest{
					FileID:   u.info.FileID,
					ChunkNum: c.id,
					Chunk:    c.data,
					Last:     c.id == maxChunk,
				})
				if err != nil {
					return fmt.Errorf("failed to send chunk %d: %w", c.id, err)
				}
				u.ack(c.id, c.plain)
				return nil
			})
		}
		return nil
	})

	return u.done(g.Wait())
}

func (u *Uploader) chunkLen(id int) int {
	rest := u.info.Size - int64(id)*int64(u.info.ChunkSize)
	return int(min(max(rest, 0), int64(u.info.ChunkSize)))
}

// ack records a chunk. Progress only covers the contiguous prefix of
// acknowledged chunks, which is what a resume can start after.
func (u *Uploader) ack(id, n int) {
	u.mu.Lock()
	u.acked[id] = n
	for {
		size, ok := u.acked[u.state.ChunkID]
		if !ok {
			break
		}
		delete(u.acked, u.state.ChunkID)
		u.state.ChunkID++
		u.state.BytesProcessed += int64(size)
	}
	state, fn := u.state, u.onProg
	u.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

func (u *Uploader) done(err error) error {
	u.finish.Do(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		if err != nil {
			u.state.Stopped = true
			return
		}
		u.state.Finished = true
	})

	if err == nil {
		u.logger.Debug("upload finished")
		return nil
	}
	err = errs.Normalize(fmt.Errorf("upload of %s failed: %w", u.info.FileID, err))
	u.logger.Warn("upload stopped", "error", err)
	return err
}
