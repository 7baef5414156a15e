package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iudanet/kegkeeper/internal/server/storage"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// maxRangeBytes bounds one blob read.
const maxRangeBytes = 64 << 20

// FileHandler serves encrypted file blobs.
type FileHandler struct {
	logger  *slog.Logger
	storage storage.FileStorage
}

// NewFileHandler creates the blob download handler.
func NewFileHandler(logger *slog.Logger, s storage.FileStorage) *FileHandler {
	return &FileHandler{logger: logger, storage: s}
}

// Blob обрабатывает GET /api/v1/files/{fileID}/blob?rangeStart=&rangeEnd=
// rangeEnd не включается в ответ.
func (h *FileHandler) Blob(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUsername(r.Context()); !ok {
		sendError(h.logger, w, errUnauthorized)
		return
	}

	fileID := chi.URLParam(r, "fileID")
	start, err := parseOffset(r, api.QueryRangeStart)
	if err != nil {
		sendError(h.logger, w, err)
		return
	}
	end, err := parseOffset(r, api.QueryRangeEnd)
	if err != nil {
		sendError(h.logger, w, err)
		return
	}
	if end-start > maxRangeBytes {
		sendError(h.logger, w, fmt.Errorf("%w: range of %d bytes", errTooLarge, end-start))
		return
	}

	data, err := h.storage.ReadRange(r.Context(), fileID, start, end)
	if err != nil {
		sendError(h.logger, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write blob", slog.String("file_id", fileID), slog.Any("error", err))
	}
}

func parseOffset(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", errMalformed, name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errMalformed, name, raw)
	}
	return v, nil
}
