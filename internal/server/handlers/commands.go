package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/internal/server/storage"
	"github.com/iudanet/kegkeeper/internal/validation"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// Limits bounds what a single user may store.
type Limits struct {
	// QuotaBytes - суммарный зашифрованный размер файлов, 0 = без лимита
	QuotaBytes int64
	// MaxChunkBytes - максимальный размер зашифрованного чанка
	MaxChunkBytes int64
}

// DefaultMaxChunkBytes fits a 1 MiB chunk with its encryption overhead.
const DefaultMaxChunkBytes = 1<<20 + crypto.ChunkOverhead

// Storage is everything the command endpoint needs from persistence.
type Storage interface {
	storage.KegStorage
	storage.FileStorage
}

// commandFunc executes one decoded command on behalf of username.
type commandFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error)

// CommandHandler serves POST /api/v1/cmd/*.
type CommandHandler struct {
	logger   *slog.Logger
	storage  Storage
	commands map[string]commandFunc
	limits   Limits
}

// NewCommandHandler creates the command dispatcher.
func NewCommandHandler(logger *slog.Logger, s Storage, limits Limits) *CommandHandler {
	if limits.MaxChunkBytes <= 0 {
		limits.MaxChunkBytes = DefaultMaxChunkBytes
	}
	h := &CommandHandler{
		logger:  logger,
		storage: s,
		limits:  limits,
	}
	h.commands = map[string]commandFunc{
		api.CmdKegCreate:        h.createKeg,
		api.CmdKegUpdate:        h.updateKeg,
		api.CmdKegGet:           h.getKeg,
		api.CmdKegDelete:        h.deleteKeg,
		api.CmdKegList:          h.listKegs,
		api.CmdDigest:           h.digest,
		api.CmdLastKnownVersion: h.lastKnownVersion,
		api.CmdFileUploadStart:  h.uploadStart,
		api.CmdFileChunkUpload:  h.chunkUpload,
		api.CmdFileUploadStatus: h.uploadStatus,
		api.CmdFileDownloadURL:  h.downloadURL,
	}
	return h
}

// maxBody is the largest accepted JSON body: a base64 chunk plus envelope.
func (h *CommandHandler) maxBody() int64 {
	return h.limits.MaxChunkBytes/3*4 + 64*1024
}

// Handle обрабатывает POST /api/v1/cmd/<command>
func (h *CommandHandler) Handle(w http.ResponseWriter, r *http.Request) {
	username, ok := GetUsername(r.Context())
	if !ok {
		h.logger.Error("username not found in context")
		sendError(h.logger, w, errUnauthorized)
		return
	}

	command := chi.URLParam(r, "*")
	fn, ok := h.commands[command]
	if !ok {
		sendError(h.logger, w, fmt.Errorf("%w: unknown command %q", errMalformed, command))
		return
	}

	resp, err := fn(r.Context(), w, r, username)
	if err != nil {
		h.logger.Debug("command rejected", "command", command, "username", username, "error", err)
		sendError(h.logger, w, err)
		return
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// alias returns the id the client should see for an internal collection id.
func alias(requested, internal string) string {
	if requested == "" || requested == api.SelfKegDbID {
		return api.SelfKegDbID
	}
	return internal
}

func parseVersion(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid version %q", errMalformed, s)
	}
	return v, nil
}

func (h *CommandHandler) createKeg(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.CreateKegRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateKegType(req.Type); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if req.KegID == "" {
		req.KegID = uuid.NewString()
	} else if err := validation.ValidateID(req.KegID); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}

	dbID, err := h.storage.ResolveDB(ctx, username, req.KegDbID, true)
	if err != nil {
		return nil, err
	}
	return h.storage.CreateKeg(ctx, dbID, req.KegID, req.Type, username)
}

func (h *CommandHandler) updateKeg(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.UpdateKegRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}
	if req.KegID == "" {
		return nil, fmt.Errorf("%w: kegId is required", errMalformed)
	}

	dbID, err := h.storage.ResolveDB(ctx, username, req.KegDbID, false)
	if err != nil {
		return nil, err
	}
	return h.storage.UpdateKeg(ctx, dbID, &req)
}

func (h *CommandHandler) getKeg(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.GetKegRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}

	dbID, err := h.storage.ResolveDB(ctx, username, req.KegDbID, false)
	if err != nil {
		return nil, err
	}
	k, err := h.storage.GetKeg(ctx, dbID, req.KegID)
	if err != nil {
		return nil, err
	}
	k.KegDbID = alias(req.KegDbID, dbID)
	return k, nil
}

func (h *CommandHandler) deleteKeg(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.DeleteKegRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}

	dbID, err := h.storage.ResolveDB(ctx, username, req.KegDbID, false)
	if err != nil {
		return nil, err
	}
	if err := h.storage.DeleteKeg(ctx, dbID, req.KegID); err != nil {
		return nil, err
	}
	return api.OKResponse{OK: true}, nil
}

func (h *CommandHandler) listKegs(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.ListKegsRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}
	minVersion, err := parseVersion(req.MinCollectionVersion)
	if err != nil {
		return nil, err
	}

	dbID, err := h.storage.ResolveDB(ctx, username, req.KegDbID, false)
	if err != nil {
		return nil, err
	}
	kegs, err := h.storage.ListKegs(ctx, dbID, req.Type, minVersion)
	if err != nil {
		return nil, err
	}
	for i := range kegs {
		kegs[i].KegDbID = alias(req.KegDbID, dbID)
	}
	return api.ListKegsResponse{Kegs: kegs}, nil
}

func (h *CommandHandler) digest(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.DigestRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}

	// internal id -> id, которым коллекцию называет клиент
	names := make(map[string]string)
	var dbIDs []string
	if len(req.KegDbIDs) == 0 {
		self, err := h.storage.ResolveDB(ctx, username, api.SelfKegDbID, false)
		if err != nil {
			return nil, err
		}
		owned, err := h.storage.OwnedDBs(ctx, username)
		if err != nil {
			return nil, err
		}
		for _, id := range owned {
			names[id] = id
		}
		names[self] = api.SelfKegDbID
		dbIDs = owned
	} else {
		for _, requested := range req.KegDbIDs {
			id, err := h.storage.ResolveDB(ctx, username, requested, false)
			if err != nil {
				return nil, err
			}
			names[id] = requested
			dbIDs = append(dbIDs, id)
		}
	}

	lines, err := h.storage.Digest(ctx, username, dbIDs)
	if err != nil {
		return nil, err
	}

	resp := api.DigestResponse{Events: make([]api.DigestEvent, 0, len(lines))}
	for _, line := range lines {
		if req.Unread && line.MaxVersion <= line.KnownVersion {
			continue
		}
		event := api.DigestEvent{
			KegDbID:      names[line.DbID],
			Type:         line.Type,
			MaxUpdateID:  strconv.FormatInt(line.MaxVersion, 10),
			NewKegsCount: line.NewKegs,
		}
		if line.KnownVersion > 0 {
			event.KnownUpdateID = strconv.FormatInt(line.KnownVersion, 10)
		}
		resp.Events = append(resp.Events, event)
	}
	return resp, nil
}

func (h *CommandHandler) lastKnownVersion(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.LastKnownVersionRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}
	version, err := parseVersion(req.LastKnownVersion)
	if err != nil {
		return nil, err
	}
	if req.Type == "" {
		return nil, fmt.Errorf("%w: type is required", errMalformed)
	}

	dbID, err := h.storage.ResolveDB(ctx, username, req.KegDbID, false)
	if err != nil {
		return nil, err
	}
	if err := h.storage.SetKnownVersion(ctx, username, dbID, req.Type, version); err != nil {
		return nil, err
	}
	return api.OKResponse{OK: true}, nil
}

func (h *CommandHandler) uploadStart(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.FileUploadStartRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}
	if req.Size < 0 || req.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d or chunk size %d", errMalformed, req.Size, req.ChunkSize)
	}
	if int64(req.ChunkSize)+crypto.ChunkOverhead > h.limits.MaxChunkBytes {
		return nil, fmt.Errorf("%w: chunk size %d", errTooLarge, req.ChunkSize)
	}

	if h.limits.QuotaBytes > 0 {
		used, err := h.storage.UsedBytes(ctx, username)
		if err != nil {
			return nil, err
		}
		info := models.FileInfo{Size: req.Size, ChunkSize: req.ChunkSize}
		need := req.Size + int64(info.ChunkCount())*crypto.ChunkOverhead
		if used+need > h.limits.QuotaBytes {
			return nil, fmt.Errorf("%w: %d of %d bytes used", errQuotaExceeded, used, h.limits.QuotaBytes)
		}
	}

	id, err := h.storage.StartUpload(ctx, username, req.Size, req.ChunkSize)
	if err != nil {
		return nil, err
	}
	h.logger.Info("upload started", "username", username, "file_id", id, "size", req.Size)
	return api.FileUploadStartResponse{FileID: id}, nil
}

func (h *CommandHandler) chunkUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.ChunkUploadRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}
	if int64(len(req.Chunk)) > h.limits.MaxChunkBytes {
		return nil, fmt.Errorf("%w: chunk of %d bytes", errTooLarge, len(req.Chunk))
	}

	if err := h.storage.PutChunk(ctx, username, req.FileID, req.ChunkNum, req.Chunk, req.Last); err != nil {
		return nil, err
	}
	return api.OKResponse{OK: true}, nil
}

func (h *CommandHandler) uploadStatus(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.FileUploadStatusRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}

	status, err := h.storage.UploadStatus(ctx, username, req.FileID)
	if err != nil {
		return nil, err
	}
	return api.FileUploadStatusResponse{LastChunkNum: status.LastChunkNum, Finished: status.Finished}, nil
}

func (h *CommandHandler) downloadURL(ctx context.Context, w http.ResponseWriter, r *http.Request, username string) (any, error) {
	req, err := decodeJSON[api.FileDownloadURLRequest](w, r, h.maxBody())
	if err != nil {
		return nil, err
	}
	// пустой диапазон только проверяет, что файл существует
	if _, err := h.storage.ReadRange(ctx, req.FileID, 0, 0); err != nil {
		return nil, err
	}
	return api.FileDownloadURLResponse{URL: BlobPath(req.FileID)}, nil
}

// BlobPath is the server-relative URL of a file's encrypted blob.
func BlobPath(fileID string) string {
	return "/api/v1/files/" + url.PathEscape(fileID) + "/blob"
}
