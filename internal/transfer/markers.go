package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/kegkeeper/internal/client/storage"
	"github.com/iudanet/kegkeeper/internal/models"
)

// Markers persists in-progress transfers so they can be resumed after a
// restart.
type Markers struct {
	engine storage.Engine
}

// NewMarkers creates marker storage on top of engine.
func NewMarkers(engine storage.Engine) *Markers {
	return &Markers{engine: engine}
}

func (m *Markers) SaveUpload(ctx context.Context, marker models.TransferMarker) error {
	return m.save(ctx, storage.UploadMarkerPrefix, marker)
}

func (m *Markers) SaveDownload(ctx context.Context, marker models.TransferMarker) error {
	return m.save(ctx, storage.DownloadMarkerPrefix, marker)
}

func (m *Markers) RemoveUpload(ctx context.Context, fileID string) error {
	return m.engine.Remove(ctx, storage.UploadMarkerPrefix+fileID)
}

func (m *Markers) RemoveDownload(ctx context.Context, fileID string) error {
	return m.engine.Remove(ctx, storage.DownloadMarkerPrefix+fileID)
}

// Uploads returns every pending upload marker.
func (m *Markers) Uploads(ctx context.Context) ([]models.TransferMarker, error) {
	return m.list(ctx, storage.UploadMarkerPrefix)
}

// Downloads returns every pending download marker.
func (m *Markers) Downloads(ctx context.Context) ([]models.TransferMarker, error) {
	return m.list(ctx, storage.DownloadMarkerPrefix)
}

func (m *Markers) save(ctx context.Context, prefix string, marker models.TransferMarker) error {
	if marker.FileID == "" {
		return fmt.Errorf("transfer marker has no file id")
	}
	if err := m.engine.Set(ctx, prefix+marker.FileID, marker); err != nil {
		return fmt.Errorf("failed to save marker %s%s: %w", prefix, marker.FileID, err)
	}
	return nil
}

func (m *Markers) list(ctx context.Context, prefix string) ([]models.TransferMarker, error) {
	keys, err := m.engine.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s markers: %w", strings.TrimSuffix(prefix, ":"), err)
	}

	markers := make([]models.TransferMarker, 0, len(keys))
	for _, key := range keys {
		var marker models.TransferMarker
		if err := m.engine.Get(ctx, key, &marker); err != nil {
			// маркер мог быть удален параллельно
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to read marker %s: %w", key, err)
		}
		if marker.FileID == "" {
			marker.FileID = strings.TrimPrefix(key, prefix)
		}
		markers = append(markers, marker)
	}
	return markers, nil
}
