package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/iudanet/kegkeeper/internal/server/handlers"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the number of bytes written
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap gives http.ResponseController access to the original writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingMiddleware логирует каждый запрос: метод, путь, команду, статус,
// длительность и размер ответа. Тела запросов и токены не логируются.
// Запросы к skipPaths (health checks) пропускаются.
func LoggingMiddleware(logger *slog.Logger, skipPaths ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			// заполняется AuthMiddleware ниже по цепочке
			var username string
			next.ServeHTTP(wrapped, r.WithContext(withUsernameSink(r.Context(), &username)))

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_written", wrapped.written,
			}
			if cmd, ok := strings.CutPrefix(r.URL.Path, commandPrefix); ok {
				attrs = append(attrs, "command", cmd)
			}
			if username != "" {
				attrs = append(attrs, "username", username)
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			logger.Log(r.Context(), level, "HTTP request", attrs...)
		})
	}
}

const commandPrefix = "/api/v1/cmd/"

type sinkKey struct{}

func withUsernameSink(ctx context.Context, dst *string) context.Context {
	return context.WithValue(ctx, sinkKey{}, dst)
}

// reportUsername записывает username для LoggingMiddleware, если она есть в цепочке.
func reportUsername(r *http.Request) {
	dst, ok := r.Context().Value(sinkKey{}).(*string)
	if !ok {
		return
	}
	if username, ok := handlers.GetUsername(r.Context()); ok {
		*dst = username
	}
}
