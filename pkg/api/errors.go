package api

// Server error codes carried in ErrorResponse.Code.
const (
	CodeGeneric          = 400
	CodeAccessForbidden  = 403
	CodeNotFound         = 404
	CodeMalformedRequest = 406
	CodeVersionConflict  = 409
	CodeAuthError        = 411
	CodeQuotaExceeded    = 413
	CodeServerError      = 500
)

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
	Code    int    `json:"code"`              // один из Code* выше
}
