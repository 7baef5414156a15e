package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/models"
)

//go:generate moq -out range_fetcher_mock.go . RangeFetcher

// RangeFetcher reads the encrypted blob of a file; end is exclusive.
type RangeFetcher interface {
	FetchRange(ctx context.Context, fileID string, start, end int64) ([]byte, error)
}

type window struct {
	data    []byte
	firstID int
}

type plainPiece struct {
	data []byte
	id   int
}

// Downloader fetches a file's blob in multi-chunk windows, decrypts it and
// writes the plaintext.
type Downloader struct {
	writer   io.Writer
	fetcher  RangeFetcher
	logger   *slog.Logger
	cancel   context.CancelFunc
	onProg   func(models.TransferState)
	info     models.FileInfo
	cfg      Config
	state    models.TransferState
	mu       sync.Mutex
	finish   sync.Once
	started  bool
	canceled bool
}

// NewDownloader prepares a download of info into writer. The writer must be
// positioned after the bytes already on disk.
func NewDownloader(info models.FileInfo, writer io.Writer, fetcher RangeFetcher, cfg Config, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Downloader{
		info:    info,
		writer:  writer,
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("file_id", info.FileID),
	}
}

// OnProgress sets a callback invoked after every written chunk.
func (d *Downloader) OnProgress(fn func(models.TransferState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onProg = fn
}

// State returns a snapshot of the progress.
func (d *Downloader) State() models.TransferState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Cancel stops the pipeline; Start returns errs.ErrUserCancel.
func (d *Downloader) Cancel() {
	d.mu.Lock()
	d.canceled = true
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Start downloads everything after the first bytesOnDisk plaintext bytes and
// blocks until the pipeline finishes.
func (d *Downloader) Start(ctx context.Context, bytesOnDisk int64) error {
	if d.info.ChunkSize <= 0 {
		return fmt.Errorf("%w: file %s has no chunk size", errs.ErrDecryption, d.info.FileID)
	}
	if bytesOnDisk < 0 || bytesOnDisk > d.info.Size {
		return fmt.Errorf("%w: %d bytes on disk, file has %d", errs.ErrDecryption, bytesOnDisk, d.info.Size)
	}

	chunkSize := int64(d.info.ChunkSize)
	sealedSize := chunkSize + crypto.ChunkOverhead
	maxChunk := d.info.MaxChunkID()
	wholeChunks := int(bytesOnDisk / chunkSize)
	partial := int(bytesOnDisk % chunkSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	if d.canceled {
		d.mu.Unlock()
		return errs.ErrUserCancel
	}
	d.started = true
	d.cancel = cancel
	d.state = models.TransferState{ChunkID: wholeChunks, BytesProcessed: bytesOnDisk}
	d.mu.Unlock()

	// все на диске, кроме пустого файла, у которого один пустой чанк
	if wholeChunks > maxChunk || (bytesOnDisk == d.info.Size && d.info.Size > 0) {
		return d.done(nil)
	}

	nonces, err := crypto.NewChunkNonceGenerator(uint32(wholeChunks), uint32(maxChunk), d.info.NonceSeed)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrDecryption, err)
	}

	total := d.info.Size + int64(d.info.ChunkCount())*crypto.ChunkOverhead
	windowSize := int64(d.cfg.DownloadWindowChunks) * sealedSize

	d.logger.Debug("download started", "start_chunk", wholeChunks, "partial", partial)

	g, gctx := errgroup.WithContext(ctx)
	budget := semaphore.NewWeighted(d.cfg.DecryptBufferBytes)
	windows := make(chan window, 1)
	pieces := make(chan plainPiece, d.cfg.DownloadWindowChunks)

	// fetch
	g.Go(func() error {
		defer close(windows)
		id := wholeChunks
		for start := int64(wholeChunks) * sealedSize; start < total; start += windowSize {
			end := min(start+windowSize, total)
			n := int(end - start)
			if err := budget.Acquire(gctx, weight(n, d.cfg.DecryptBufferBytes)); err != nil {
				return err
			}
			data, err := d.fetcher.FetchRange(gctx, d.info.FileID, start, end)
			if err != nil {
				return fmt.Errorf("failed to fetch bytes %d-%d: %w", start, end, err)
			}
			if len(data) != n {
				return fmt.Errorf("%w: fetched %d bytes of %d", errs.ErrDisconnected, len(data), n)
			}
			select {
			case windows <- window{firstID: id, data: data}:
			case <-gctx.Done():
				return gctx.Err()
			}
			id += int((end - start + sealedSize - 1) / sealedSize)
		}
		return nil
	})

	// decrypt
	g.Go(func() error {
		defer close(pieces)
		trim := partial
		for w := range windows {
			id := w.firstID
			for off := 0; off < len(w.data); off += int(sealedSize) {
				sealed := w.data[off:min(off+int(sealedSize), len(w.data))]
				nonce, err := nonces.Next(id == maxChunk)
				if err != nil {
					return fmt.Errorf("%w: %w", errs.ErrDecryption, err)
				}
				plain, err := crypto.DecryptWithNonce(sealed, d.info.Key, nonce)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", id, err)
				}
				if trim > 0 {
					if trim > len(plain) {
						return fmt.Errorf("%w: chunk %d shorter than the partial tail on disk", errs.ErrDecryption, id)
					}
					plain = plain[trim:]
					trim = 0
				}
				select {
				case pieces <- plainPiece{id: id, data: plain}:
				case <-gctx.Done():
					return gctx.Err()
				}
				id++
			}
			budget.Release(weight(len(w.data), d.cfg.DecryptBufferBytes))
		}
		return nil
	})

	// write
	g.Go(func() error {
		for p := range pieces {
			if _, err := d.writer.Write(p.data); err != nil {
				return fmt.Errorf("failed to write chunk %d: %w", p.id, err)
			}
			d.advance(len(p.data))
		}
		return nil
	})

	return d.done(g.Wait())
}

func (d *Downloader) advance(n int) {
	d.mu.Lock()
	d.state.ChunkID++
	d.state.BytesProcessed += int64(n)
	state, fn := d.state, d.onProg
	d.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

func (d *Downloader) done(err error) error {
	d.finish.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err != nil {
			d.state.Stopped = true
			return
		}
		d.state.Finished = true
	})

	if err == nil {
		d.logger.Debug("download finished")
		return nil
	}
	err = errs.Normalize(fmt.Errorf("download of %s failed: %w", d.info.FileID, err))
	d.logger.Warn("download stopped", "error", err)
	return err
}
