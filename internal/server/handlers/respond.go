package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/iudanet/kegkeeper/internal/server/storage"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// Ошибки уровня запроса; ошибки хранилища описаны в storage.
var (
	errMalformed     = errors.New("malformed request")
	errUnauthorized  = errors.New("unauthorized")
	errQuotaExceeded = errors.New("quota exceeded")
	errTooLarge      = errors.New("request too large")
)

// errorStatus maps an error to the wire error code and the HTTP status.
func errorStatus(err error) (code, status int) {
	switch {
	case errors.Is(err, errUnauthorized):
		return api.CodeAuthError, http.StatusUnauthorized
	case errors.Is(err, storage.ErrAccessForbidden):
		return api.CodeAccessForbidden, http.StatusForbidden
	case errors.Is(err, storage.ErrKegNotFound),
		errors.Is(err, storage.ErrKegDbNotFound),
		errors.Is(err, storage.ErrFileNotFound),
		errors.Is(err, storage.ErrUserNotFound):
		return api.CodeNotFound, http.StatusNotFound
	case errors.Is(err, storage.ErrVersionConflict),
		errors.Is(err, storage.ErrKegExists),
		errors.Is(err, storage.ErrFileFinished):
		return api.CodeVersionConflict, http.StatusConflict
	case errors.Is(err, errQuotaExceeded), errors.Is(err, errTooLarge):
		return api.CodeQuotaExceeded, http.StatusRequestEntityTooLarge
	case errors.Is(err, errMalformed),
		errors.Is(err, storage.ErrTypeMismatch),
		errors.Is(err, storage.ErrInvalidChunk):
		return api.CodeMalformedRequest, http.StatusBadRequest
	case errors.Is(err, storage.ErrRangeNotSatisfiable):
		return api.CodeMalformedRequest, http.StatusRequestedRangeNotSatisfiable
	}
	return api.CodeServerError, http.StatusInternalServerError
}

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *slog.Logger, w http.ResponseWriter, err error) {
	code, status := errorStatus(err)
	resp := api.ErrorResponse{
		Error: http.StatusText(status),
		Code:  code,
	}
	if code == api.CodeServerError {
		// подробности внутренних ошибок наружу не отдаем
		logger.Error("request failed", slog.Any("error", err))
	} else {
		resp.Message = err.Error()
	}
	sendJSON(logger, w, resp, status)
}

// decodeJSON reads a JSON body of at most limit bytes.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, error) {
	var req T
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("%w: body exceeds %d bytes", errTooLarge, tooLarge.Limit)
		}
		return req, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if len(body) == 0 {
		return req, fmt.Errorf("%w: empty body", errMalformed)
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return req, nil
}
