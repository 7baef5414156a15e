package sqlite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/server/storage"
	"github.com/iudanet/kegkeeper/pkg/api"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	// Используем in-memory database для тестов
	s, err := New(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestUserStorage_EnsureUser(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	_, err := s.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	first, err := s.EnsureUser(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, first.SelfDbID)

	second, err := s.EnsureUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.SelfDbID, second.SelfDbID)

	other, err := s.EnsureUser(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first.SelfDbID, other.SelfDbID)
}

func TestKegStorage_ResolveDB(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	self, err := s.ResolveDB(ctx, "alice", api.SelfKegDbID, false)
	require.NoError(t, err)
	user, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.SelfDbID, self)

	// свой id коллекции тоже работает
	got, err := s.ResolveDB(ctx, "alice", self, false)
	require.NoError(t, err)
	assert.Equal(t, self, got)

	_, err = s.ResolveDB(ctx, "bob", self, false)
	assert.ErrorIs(t, err, storage.ErrAccessForbidden)

	_, err = s.ResolveDB(ctx, "alice", "room-1", false)
	assert.ErrorIs(t, err, storage.ErrKegDbNotFound)

	room, err := s.ResolveDB(ctx, "alice", "room-1", true)
	require.NoError(t, err)
	assert.Equal(t, "room-1", room)

	_, err = s.ResolveDB(ctx, "bob", "room-1", true)
	assert.ErrorIs(t, err, storage.ErrAccessForbidden)

	dbs, err := s.OwnedDBs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{self, "room-1"}, dbs)
}

func newDB(t *testing.T, s *Storage, username string) string {
	t.Helper()
	id, err := s.ResolveDB(context.Background(), username, api.SelfKegDbID, true)
	require.NoError(t, err)
	return id
}

func TestKegStorage_CreateUpdateGet(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	db := newDB(t, s, "alice")

	created, err := s.CreateKeg(ctx, db, "k1", "note", "alice")
	require.NoError(t, err)
	assert.Equal(t, "k1", created.KegID)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "1", created.CollectionVersion)

	_, err = s.CreateKeg(ctx, db, "k1", "note", "alice")
	assert.ErrorIs(t, err, storage.ErrKegExists)

	empty, err := s.GetKeg(ctx, db, "k1")
	require.NoError(t, err)
	assert.Empty(t, empty.Payload)
	assert.Equal(t, "alice", empty.Owner)

	req := &api.UpdateKegRequest{
		KegID:     "k1",
		Type:      "note",
		KeyID:     "key-1",
		Payload:   []byte{1, 2, 3},
		Version:   2,
		Format:    1,
		Signature: "sig",
	}
	updated, err := s.UpdateKeg(ctx, db, req)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "2", updated.CollectionVersion)

	k, err := s.GetKeg(ctx, db, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, k.Payload)
	assert.Equal(t, "key-1", k.KeyID)
	assert.Equal(t, "sig", k.Signature)
	assert.Equal(t, 2, k.Version)
	assert.Equal(t, 1, k.Format)
	assert.Equal(t, db, k.KegDbID)

	tests := []struct {
		wantErr error
		name    string
		req     api.UpdateKegRequest
	}{
		{name: "same version", req: api.UpdateKegRequest{KegID: "k1", Version: 2}, wantErr: storage.ErrVersionConflict},
		{name: "skipped version", req: api.UpdateKegRequest{KegID: "k1", Version: 4}, wantErr: storage.ErrVersionConflict},
		{name: "missing keg", req: api.UpdateKegRequest{KegID: "nope", Version: 2}, wantErr: storage.ErrKegNotFound},
		{name: "type change", req: api.UpdateKegRequest{KegID: "k1", Type: "other", Version: 3}, wantErr: storage.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpdateKeg(ctx, db, &tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestKegStorage_Props(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	db := newDB(t, s, "alice")

	_, err := s.CreateKeg(ctx, db, "f1", "file", "alice")
	require.NoError(t, err)
	_, err = s.UpdateKeg(ctx, db, &api.UpdateKegRequest{
		KegID:   "f1",
		Payload: []byte("x"),
		Props:   map[string]json.RawMessage{"fileId": json.RawMessage(`"abc"`)},
		Version: 2,
	})
	require.NoError(t, err)

	k, err := s.GetKeg(ctx, db, "f1")
	require.NoError(t, err)
	assert.JSONEq(t, `"abc"`, string(k.Props["fileId"]))
}

func TestKegStorage_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	db := newDB(t, s, "alice")

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.CreateKeg(ctx, db, id, "note", "alice")
		require.NoError(t, err)
	}
	_, err := s.CreateKeg(ctx, db, "s", "settings", "alice")
	require.NoError(t, err)

	kegs, err := s.ListKegs(ctx, db, "note", 0)
	require.NoError(t, err)
	assert.Len(t, kegs, 3)

	// только новее второй версии коллекции
	kegs, err = s.ListKegs(ctx, db, "note", 2)
	require.NoError(t, err)
	require.Len(t, kegs, 1)
	assert.Equal(t, "c", kegs[0].KegID)

	require.NoError(t, s.DeleteKeg(ctx, db, "b"))
	assert.ErrorIs(t, s.DeleteKeg(ctx, db, "b"), storage.ErrKegNotFound)
	assert.ErrorIs(t, s.DeleteKeg(ctx, db, "zzz"), storage.ErrKegNotFound)

	_, err = s.GetKeg(ctx, db, "b")
	assert.ErrorIs(t, err, storage.ErrKegNotFound)
	_, err = s.UpdateKeg(ctx, db, &api.UpdateKegRequest{KegID: "b", Version: 2})
	assert.ErrorIs(t, err, storage.ErrKegNotFound)

	kegs, err = s.ListKegs(ctx, db, "note", 0)
	require.NoError(t, err)
	assert.Len(t, kegs, 2)

	kegs, err = s.ListKegs(ctx, db, "unknown", 0)
	require.NoError(t, err)
	assert.NotNil(t, kegs)
	assert.Empty(t, kegs)
}

func TestKegStorage_Digest(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	db := newDB(t, s, "alice")

	_, err := s.CreateKeg(ctx, db, "n1", "note", "alice") // 1
	require.NoError(t, err)
	_, err = s.CreateKeg(ctx, db, "n2", "note", "alice") // 2
	require.NoError(t, err)
	_, err = s.CreateKeg(ctx, db, "s1", "settings", "alice") // 3
	require.NoError(t, err)

	lines, err := s.Digest(ctx, "alice", []string{db})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, storage.DigestLine{DbID: db, Type: "note", MaxVersion: 2, KnownVersion: 0, NewKegs: 2}, lines[0])
	assert.Equal(t, storage.DigestLine{DbID: db, Type: "settings", MaxVersion: 3, KnownVersion: 0, NewKegs: 1}, lines[1])

	require.NoError(t, s.SetKnownVersion(ctx, "alice", db, "note", 2))
	// откат назад игнорируется
	require.NoError(t, s.SetKnownVersion(ctx, "alice", db, "note", 1))

	lines, err = s.Digest(ctx, "alice", []string{db})
	require.NoError(t, err)
	assert.Equal(t, int64(2), lines[0].KnownVersion)
	assert.Equal(t, 0, lines[0].NewKegs)

	_, err = s.UpdateKeg(ctx, db, &api.UpdateKegRequest{KegID: "n1", Payload: []byte("x"), Version: 2}) // 4
	require.NoError(t, err)

	lines, err = s.Digest(ctx, "alice", []string{db})
	require.NoError(t, err)
	assert.Equal(t, int64(4), lines[0].MaxVersion)
	assert.Equal(t, 1, lines[0].NewKegs)
}
