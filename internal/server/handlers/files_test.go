package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/pkg/api"
)

func getBlob(t *testing.T, ts *testServer, username, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if username != "" {
		req.Header.Set(testUserHeader, username)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestFileHandler_Blob(t *testing.T) {
	ts := newTestServer(t, Limits{})
	ctx := context.Background()

	id, err := ts.storage.StartUpload(ctx, "alice", 0, 16)
	require.NoError(t, err)
	chunk := []byte("0123456789abcdef0123456789abcdef") // пустой файл: только overhead
	require.NoError(t, ts.storage.PutChunk(ctx, "alice", id, 0, chunk, true))

	path := BlobPath(id)
	tests := []struct {
		name       string
		username   string
		query      string
		wantBody   string
		wantStatus int
		wantCode   int
	}{
		{name: "whole blob", username: "alice", query: "?rangeStart=0&rangeEnd=32", wantStatus: http.StatusOK, wantBody: string(chunk)},
		{name: "middle", username: "bob", query: "?rangeStart=10&rangeEnd=12", wantStatus: http.StatusOK, wantBody: "ab"},
		{name: "empty range", username: "alice", query: "?rangeStart=5&rangeEnd=5", wantStatus: http.StatusOK, wantBody: ""},
		{name: "no user", query: "?rangeStart=0&rangeEnd=1", wantStatus: http.StatusUnauthorized, wantCode: api.CodeAuthError},
		{name: "missing end", username: "alice", query: "?rangeStart=0", wantStatus: http.StatusBadRequest, wantCode: api.CodeMalformedRequest},
		{name: "negative start", username: "alice", query: "?rangeStart=-1&rangeEnd=2", wantStatus: http.StatusBadRequest, wantCode: api.CodeMalformedRequest},
		{name: "past end", username: "alice", query: "?rangeStart=0&rangeEnd=33", wantStatus: http.StatusRequestedRangeNotSatisfiable, wantCode: api.CodeMalformedRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getBlob(t, ts, tt.username, path+tt.query)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantCode != 0 {
				assert.Equal(t, tt.wantCode, errorCode(t, w))
				return
			}
			assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}

	w := getBlob(t, ts, "alice", BlobPath("missing")+"?rangeStart=0&rangeEnd=1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
