package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/server/storage/sqlite"
	"github.com/iudanet/kegkeeper/pkg/api"
)

const testUserHeader = "X-Test-User"

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

func setupTestStorage(t *testing.T) *sqlite.Storage {
	t.Helper()
	s, err := sqlite.New(context.Background(), ":memory:", setupTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// testServer mounts the handlers like the real router, but takes the
// username from a header instead of a token.
type testServer struct {
	router  chi.Router
	storage *sqlite.Storage
}

func newTestServer(t *testing.T, limits Limits) *testServer {
	t.Helper()
	logger := setupTestLogger()
	s := setupTestStorage(t)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u := r.Header.Get(testUserHeader); u != "" {
				r = r.WithContext(WithUsername(r.Context(), u))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/api/v1/cmd/*", NewCommandHandler(logger, s, limits).Handle)
	r.Get("/api/v1/files/{fileID}/blob", NewFileHandler(logger, s).Blob)
	return &testServer{router: r, storage: s}
}

func (ts *testServer) send(t *testing.T, username, command string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	default:
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cmd/"+command, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.Header.Set(testUserHeader, username)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// call sends a command that must succeed and decodes the reply.
func call[T any](t *testing.T, ts *testServer, username, command string, payload any) T {
	t.Helper()
	w := ts.send(t, username, command, payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// errorCode decodes an ErrorResponse.
func errorCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Code
}
