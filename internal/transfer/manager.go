package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/keg"
	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/internal/retry"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// ErrFileChanged is returned when a resumed upload finds the source file
// with a different size than when the upload started.
var ErrFileChanged = errors.New("file changed since upload started")

// Transport carries chunk traffic.
type Transport interface {
	ChunkSender
	RangeFetcher
}

// Manager ties transfers to file kegs: it reserves the blob, stores the
// file keg, keeps resume markers and drives the pipelines through the retry
// engine.
type Manager struct {
	sess      *session.Session
	db        keg.DB
	transport Transport
	markers   *Markers
	retry     *retry.Engine
	logger    *slog.Logger
	progress  func(fileID string, state models.TransferState)
	cfg       Config
}

// NewManager creates a transfer manager storing file kegs in db.
func NewManager(sess *session.Session, db keg.DB, transport Transport, markers *Markers, retrier *retry.Engine, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		sess:      sess,
		db:        db,
		transport: transport,
		markers:   markers,
		retry:     retrier,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// OnProgress sets a callback for progress of every transfer the manager runs.
func (m *Manager) OnProgress(fn func(fileID string, state models.TransferState)) {
	m.progress = fn
}

// Upload encrypts and uploads the file at path and returns its file keg.
// If the transfer fails after the keg was saved, the keg is returned with
// the error and the upload marker stays for ResumePending.
func (m *Manager) Upload(ctx context.Context, path string) (*keg.Keg, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	stream, err := OpenFileStream(path)
	if err != nil {
		return nil, err
	}
	size := stream.Size()
	_ = stream.Close()

	key, err := crypto.NewKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	seed, err := crypto.NewNonceSeed()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	chunkSize := ChunkSizeFor(size)

	start, err := retry.DoValue(ctx, m.retry, "", func(ctx context.Context) (api.FileUploadStartResponse, error) {
		var resp api.FileUploadStartResponse
		err := m.sess.Conn.Send(ctx, api.CmdFileUploadStart, api.FileUploadStartRequest{Size: size, ChunkSize: chunkSize}, &resp)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reserve file: %w", err)
	}

	info := models.FileInfo{
		FileID:    start.FileID,
		Name:      filepath.Base(path),
		Key:       key,
		NonceSeed: seed,
		Size:      size,
		ChunkSize: chunkSize,
	}

	k := keg.New(m.sess, m.db, keg.KindFile, keg.FileContentFrom(info))
	if err := m.retry.Do(ctx, "", k.SaveToServer); err != nil {
		return nil, fmt.Errorf("failed to save file keg: %w", err)
	}

	marker := models.TransferMarker{FileID: info.FileID, Path: path, KegID: k.ID}
	if err := m.markers.SaveUpload(ctx, marker); err != nil {
		return nil, err
	}

	m.logger.Info("uploading file", "file_id", info.FileID, "size", size, "chunk_size", chunkSize)
	if err := m.upload(ctx, info, path); err != nil {
		return k, err
	}
	if err := m.markers.RemoveUpload(ctx, info.FileID); err != nil {
		m.logger.Warn("failed to remove upload marker", "file_id", info.FileID, "error", err)
	}
	return k, nil
}

// upload continues from whatever the server already has.
func (m *Manager) upload(ctx context.Context, info models.FileInfo, path string) error {
	return m.retry.Do(ctx, "upload:"+info.FileID, func(ctx context.Context) error {
		var status api.FileUploadStatusResponse
		if err := m.sess.Conn.Send(ctx, api.CmdFileUploadStatus, api.FileUploadStatusRequest{FileID: info.FileID}, &status); err != nil {
			return err
		}
		next := status.LastChunkNum + 1
		if status.Finished || next > info.MaxChunkID() {
			return nil
		}

		stream, err := OpenFileStream(path)
		if err != nil {
			return err
		}
		defer stream.Close()
		if stream.Size() != info.Size {
			return fmt.Errorf("%w: %s is %d bytes, expected %d", ErrFileChanged, path, stream.Size(), info.Size)
		}

		u := NewUploader(info, stream, m.transport, m.cfg, m.logger)
		u.OnProgress(m.report(info.FileID))
		if next > 0 {
			m.logger.Info("resuming upload", "file_id", info.FileID, "chunk", next)
		}
		stop := m.cancelOnDisconnect(u.Cancel)
		err = u.Start(ctx, next)
		return m.disconnected(ctx, stop(), err, info.FileID)
	})
}

// Download writes the file described by fileKeg to path.
func (m *Manager) Download(ctx context.Context, fileKeg *keg.Keg, path string) error {
	content, ok := fileKeg.Content.(*keg.FileContent)
	if !ok {
		return fmt.Errorf("keg %s is not a file keg", fileKeg.ID)
	}
	info := content.Info()

	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	w, _, err := CreateFileWriter(path, false)
	if err != nil {
		return err
	}
	_ = w.Close()

	marker := models.TransferMarker{FileID: info.FileID, Path: path, KegID: fileKeg.ID}
	if err := m.markers.SaveDownload(ctx, marker); err != nil {
		return err
	}

	m.logger.Info("downloading file", "file_id", info.FileID, "size", info.Size)
	if err := m.download(ctx, info, path); err != nil {
		return err
	}
	if err := m.markers.RemoveDownload(ctx, info.FileID); err != nil {
		m.logger.Warn("failed to remove download marker", "file_id", info.FileID, "error", err)
	}
	return nil
}

// download appends to whatever is already on disk.
func (m *Manager) download(ctx context.Context, info models.FileInfo, path string) error {
	return m.retry.Do(ctx, "download:"+info.FileID, func(ctx context.Context) (err error) {
		w, onDisk, err := CreateFileWriter(path, true)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := w.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close %s: %w", path, cerr)
			}
		}()
		if onDisk > info.Size {
			return fmt.Errorf("%w: %s is longer than the file being downloaded", ErrFileChanged, path)
		}

		d := NewDownloader(info, w, m.transport, m.cfg, m.logger)
		d.OnProgress(m.report(info.FileID))
		if onDisk > 0 {
			m.logger.Info("resuming download", "file_id", info.FileID, "bytes_on_disk", onDisk)
		}
		stop := m.cancelOnDisconnect(d.Cancel)
		err = d.Start(ctx, onDisk)
		return m.disconnected(ctx, stop(), err, info.FileID)
	})
}

// cancelOnDisconnect stops a running pipeline when the connection drops.
// The returned func unsubscribes and reports whether a drop happened.
func (m *Manager) cancelOnDisconnect(cancel func()) (stop func() bool) {
	var lost atomic.Bool
	unsubscribe := m.sess.Conn.OnDisconnected(func() {
		lost.Store(true)
		cancel()
	})
	return func() bool {
		unsubscribe()
		return lost.Load()
	}
}

// disconnected maps a cancellation caused by a dropped connection to the
// retryable errs.ErrDisconnected.
func (m *Manager) disconnected(ctx context.Context, lost bool, err error, fileID string) error {
	if !lost || ctx.Err() != nil || !errors.Is(err, errs.ErrUserCancel) {
		return err
	}
	m.logger.Warn("connection lost during transfer", "file_id", fileID)
	return fmt.Errorf("%w: transfer of %s interrupted", errs.ErrDisconnected, fileID)
}

// ResumePending continues every transfer that has a marker. Markers whose
// file keg no longer exists are dropped. It returns the number of transfers
// completed.
func (m *Manager) ResumePending(ctx context.Context) (int, error) {
	var (
		done     int
		failures []error
	)

	uploads, err := m.markers.Uploads(ctx)
	if err != nil {
		return 0, err
	}
	for _, marker := range uploads {
		dropped, err := m.resume(ctx, marker, m.upload, m.markers.RemoveUpload)
		if err != nil {
			failures = append(failures, fmt.Errorf("upload %s: %w", marker.FileID, err))
			continue
		}
		if !dropped {
			done++
		}
	}

	downloads, err := m.markers.Downloads(ctx)
	if err != nil {
		return done, errors.Join(append(failures, err)...)
	}
	for _, marker := range downloads {
		dropped, err := m.resume(ctx, marker, m.download, m.markers.RemoveDownload)
		if err != nil {
			failures = append(failures, fmt.Errorf("download %s: %w", marker.FileID, err))
			continue
		}
		if !dropped {
			done++
		}
	}

	return done, errors.Join(failures...)
}

// resume runs one marked transfer. dropped is set when the marker pointed to
// no file keg and was removed without transferring anything.
func (m *Manager) resume(
	ctx context.Context,
	marker models.TransferMarker,
	run func(context.Context, models.FileInfo, string) error,
	remove func(context.Context, string) error,
) (dropped bool, err error) {
	if marker.KegID == "" {
		m.logger.Warn("dropping marker without file keg", "file_id", marker.FileID)
		return true, remove(ctx, marker.FileID)
	}
	info, err := m.fileInfo(ctx, marker.KegID)
	if errs.IsServerCode(err, api.CodeNotFound) {
		m.logger.Warn("dropping marker without file keg", "file_id", marker.FileID, "keg_id", marker.KegID)
		return true, remove(ctx, marker.FileID)
	}
	if err != nil {
		return false, err
	}
	if info.FileID != marker.FileID {
		return false, fmt.Errorf("%w: keg %s describes file %s", errs.ErrAntiTamper, marker.KegID, info.FileID)
	}

	if err := run(ctx, info, marker.Path); err != nil {
		return false, err
	}
	return false, remove(ctx, marker.FileID)
}

func (m *Manager) fileInfo(ctx context.Context, kegID string) (models.FileInfo, error) {
	content := &keg.FileContent{}
	k := keg.New(m.sess, m.db, keg.KindFile, content)
	k.ID = kegID
	if err := m.retry.Do(ctx, "", k.Load); err != nil {
		return models.FileInfo{}, err
	}
	return content.Info(), nil
}

func (m *Manager) report(fileID string) func(models.TransferState) {
	return func(state models.TransferState) {
		if m.progress != nil {
			m.progress(fileID, state)
		}
	}
}
