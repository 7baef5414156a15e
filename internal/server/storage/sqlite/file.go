package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/server/storage"
)

type fileRow struct {
	owner     string
	size      int64
	chunkSize int
	finished  bool
}

// chunkCount mirrors the client split: an empty file still has one chunk.
func (f fileRow) chunkCount() int {
	if f.size <= 0 || f.chunkSize <= 0 {
		return 1
	}
	return int((f.size + int64(f.chunkSize) - 1) / int64(f.chunkSize))
}

// encryptedSize is the blob size once every chunk is stored.
func (f fileRow) encryptedSize() int64 {
	return f.size + int64(f.chunkCount())*crypto.ChunkOverhead
}

func (s *Storage) getFile(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, fileID string) (*fileRow, error) {
	var f fileRow
	err := q.QueryRowContext(ctx,
		`SELECT owner, size, chunk_size, finished FROM files WHERE id = ?`, fileID,
	).Scan(&f.owner, &f.size, &f.chunkSize, &f.finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}

// StartUpload reserves a file id.
func (s *Storage) StartUpload(ctx context.Context, owner string, size int64, chunkSize int) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, owner, size, chunk_size, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, owner, size, chunkSize, s.now().UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to insert file: %w", err)
	}
	return id, nil
}

// PutChunk stores one encrypted chunk.
func (s *Storage) PutChunk(ctx context.Context, owner, fileID string, num int, data []byte, last bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		f, err := s.getFile(ctx, tx, fileID)
		if err != nil {
			return err
		}
		if f.owner != owner {
			return storage.ErrAccessForbidden
		}
		if f.finished {
			return storage.ErrFileFinished
		}

		count := f.chunkCount()
		if num < 0 || num >= count {
			return fmt.Errorf("%w: chunk %d of %d", storage.ErrInvalidChunk, num, count)
		}
		if last != (num == count-1) {
			return fmt.Errorf("%w: chunk %d last flag mismatch", storage.ErrInvalidChunk, num)
		}
		want := int64(f.chunkSize) + crypto.ChunkOverhead
		if last {
			want = f.encryptedSize() - int64(num)*want
		}
		if int64(len(data)) != want {
			return fmt.Errorf("%w: chunk %d has %d bytes, want %d", storage.ErrInvalidChunk, num, len(data), want)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_chunks (file_id, chunk_num, data, last) VALUES (?, ?, ?, ?)
			ON CONFLICT(file_id, chunk_num) DO UPDATE SET data = excluded.data, last = excluded.last`,
			fileID, num, data, boolToInt(last),
		); err != nil {
			return fmt.Errorf("failed to store chunk: %w", err)
		}

		status, err := s.status(ctx, tx, fileID)
		if err != nil {
			return err
		}
		if status.LastChunkNum == count-1 {
			if _, err := tx.ExecContext(ctx, `UPDATE files SET finished = 1 WHERE id = ?`, fileID); err != nil {
				return fmt.Errorf("failed to finish file: %w", err)
			}
		}
		return nil
	})
}

// UploadStatus returns the contiguous stored prefix.
func (s *Storage) UploadStatus(ctx context.Context, owner, fileID string) (*storage.FileStatus, error) {
	f, err := s.getFile(ctx, s.db, fileID)
	if err != nil {
		return nil, err
	}
	if f.owner != owner {
		return nil, storage.ErrAccessForbidden
	}
	if f.finished {
		return &storage.FileStatus{LastChunkNum: f.chunkCount() - 1, Finished: true}, nil
	}
	return s.status(ctx, s.db, fileID)
}

func (s *Storage) status(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, fileID string) (*storage.FileStatus, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT chunk_num, last FROM file_chunks WHERE file_id = ? ORDER BY chunk_num`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	status := &storage.FileStatus{LastChunkNum: -1}
	for rows.Next() {
		var (
			num  int
			last bool
		)
		if err := rows.Scan(&num, &last); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		// нужен только непрерывный префикс
		if num != status.LastChunkNum+1 {
			break
		}
		status.LastChunkNum = num
		status.Finished = last
	}
	return status, rows.Err()
}

// ReadRange returns bytes [start, end) of the encrypted blob.
func (s *Storage) ReadRange(ctx context.Context, fileID string, start, end int64) ([]byte, error) {
	f, err := s.getFile(ctx, s.db, fileID)
	if err != nil {
		return nil, err
	}
	if start < 0 || end < start || end > f.encryptedSize() {
		return nil, fmt.Errorf("%w: [%d,%d) of %d", storage.ErrRangeNotSatisfiable, start, end, f.encryptedSize())
	}
	if start == end {
		return []byte{}, nil
	}

	frame := int64(f.chunkSize) + crypto.ChunkOverhead
	first := start / frame
	lastNum := (end - 1) / frame

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_num, data FROM file_chunks
		WHERE file_id = ? AND chunk_num BETWEEN ? AND ?
		ORDER BY chunk_num`,
		fileID, first, lastNum,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]byte, 0, end-start)
	next := first
	for rows.Next() {
		var (
			num  int64
			data []byte
		)
		if err := rows.Scan(&num, &data); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if num != next {
			break
		}
		offset := num * frame
		lo := max(start-offset, 0)
		hi := min(end-offset, int64(len(data)))
		out = append(out, data[lo:hi]...)
		next++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if int64(len(out)) != end-start {
		return nil, fmt.Errorf("%w: chunk %d not uploaded", storage.ErrRangeNotSatisfiable, next)
	}
	return out, nil
}

// UsedBytes sums the encrypted size of every file of owner.
func (s *Storage) UsedBytes(ctx context.Context, owner string) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT size, chunk_size FROM files WHERE owner = ?`, owner)
	if err != nil {
		return 0, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var used int64
	for rows.Next() {
		f := fileRow{owner: owner}
		if err := rows.Scan(&f.size, &f.chunkSize); err != nil {
			return 0, fmt.Errorf("failed to scan file: %w", err)
		}
		used += f.encryptedSize()
	}
	return used, rows.Err()
}
