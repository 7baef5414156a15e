package digest

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/client/storage"
	"github.com/iudanet/kegkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

type sentCommand struct {
	payload any
	command string
}

// fakeSender отвечает заранее заданными событиями дайджеста.
type fakeSender struct {
	err    error
	unread []api.DigestEvent
	byDb   map[string][]api.DigestEvent
	sent   []sentCommand
	mu     sync.Mutex
}

func (f *fakeSender) Send(_ context.Context, command string, payload, resp any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCommand{command: command, payload: payload})
	if f.err != nil {
		return f.err
	}

	if command != api.CmdDigest {
		return nil
	}
	req := payload.(api.DigestRequest)
	out := api.DigestResponse{}
	if req.Unread {
		out.Events = append(out.Events, f.unread...)
	}
	for _, id := range req.KegDbIDs {
		out.Events = append(out.Events, f.byDb[id]...)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, resp)
}

func (f *fakeSender) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.command)
	}
	return out
}

func event(db, typ, maxID, knownID string) api.DigestEvent {
	return api.DigestEvent{KegDbID: db, Type: typ, MaxUpdateID: maxID, KnownUpdateID: knownID}
}

func newLiveTracker(sender session.Sender) *Tracker {
	tr := New(sender, Config{}, nil)
	tr.Flush()
	return tr
}

func TestTracker_Monotonic(t *testing.T) {
	tr := newLiveTracker(&fakeSender{})

	var fired []models.DigestEntry
	tr.Subscribe("db", "message", func(e models.DigestEntry) { fired = append(fired, e) })

	tr.ProcessEvent(event("db", "message", "10", "5"))
	require.Len(t, fired, 1)

	// более старое событие игнорируется
	tr.ProcessEvent(event("db", "message", "9", "9"))
	assert.Len(t, fired, 1)
	assert.Equal(t, "10", tr.Digest("db", "message").MaxUpdateID)
	assert.Equal(t, "5", tr.Digest("db", "message").KnownUpdateID)

	// дубликат игнорируется
	tr.ProcessEvent(event("db", "message", "10", "5"))
	assert.Len(t, fired, 1)

	tr.ProcessEvent(event("db", "message", "11", "5"))
	require.Len(t, fired, 2)
	assert.Equal(t, "11", fired[1].MaxUpdateID)

	// изменение только счётчика новых кегов тоже применяется
	ev := event("db", "message", "11", "5")
	ev.NewKegsCount = 3
	tr.ProcessEvent(ev)
	assert.Len(t, fired, 3)
}

func TestTracker_KnownNeverGoesBack(t *testing.T) {
	tr := newLiveTracker(&fakeSender{})

	tr.ProcessEvent(event("db", "message", "10", "8"))
	tr.ProcessEvent(event("db", "message", "12", "3"))

	entry := tr.Digest("db", "message")
	assert.Equal(t, "12", entry.MaxUpdateID)
	assert.Equal(t, "8", entry.KnownUpdateID)
}

func TestTracker_AutoAck(t *testing.T) {
	tr := New(&fakeSender{}, Config{AutoAckTypes: []string{"avatar"}}, nil)
	tr.Flush()

	for _, typ := range []string{TypeBoot, TypeTofu, "avatar"} {
		tr.ProcessEvent(event("db", typ, "7", "1"))
		entry := tr.Digest("db", typ)
		assert.Equal(t, "7", entry.KnownUpdateID, typ)
		assert.False(t, entry.HasUpdates(), typ)
	}

	tr.ProcessEvent(event("db", "message", "7", "1"))
	assert.True(t, tr.HasUpdates("db", "message"))
}

func TestTracker_AccumulateAndFlush(t *testing.T) {
	tr := New(&fakeSender{}, Config{}, nil)

	var typeFired, dbFired []string
	tr.Subscribe("a", "message", func(e models.DigestEntry) { typeFired = append(typeFired, e.MaxUpdateID) })
	tr.OnKegDbAdded(func(id string) { dbFired = append(dbFired, id) })

	require.True(t, tr.Accumulating())
	tr.ProcessEvent(event("a", "message", "1", ""))
	tr.ProcessEvent(event("a", "message", "2", ""))
	tr.ProcessEvent(event("a", "message", "3", ""))
	tr.ProcessEvent(event("b", "file", "1", ""))
	assert.Empty(t, typeFired)
	assert.Empty(t, dbFired)

	tr.Flush()
	assert.False(t, tr.Accumulating())
	assert.Equal(t, []string{"3"}, typeFired, "one notification with the latest entry")
	assert.Equal(t, []string{"a", "b"}, dbFired)

	// второй Flush ничего не повторяет
	tr.Flush()
	assert.Len(t, typeFired, 1)
	assert.Len(t, dbFired, 2)

	// live: db уже известна, событие типа приходит сразу
	tr.ProcessEvent(event("a", "message", "4", ""))
	assert.Equal(t, []string{"3", "4"}, typeFired)
	assert.Len(t, dbFired, 2)
}

func TestTracker_Unsubscribe(t *testing.T) {
	tr := newLiveTracker(&fakeSender{})

	var calls int
	unsub := tr.Subscribe("db", "t", func(models.DigestEntry) { calls++ })
	tr.ProcessEvent(event("db", "t", "1", ""))
	unsub()
	tr.ProcessEvent(event("db", "t", "2", ""))
	assert.Equal(t, 1, calls)
}

func TestTracker_SeenThis(t *testing.T) {
	sender := &fakeSender{}
	tr := newLiveTracker(sender)
	ctx := context.Background()

	tr.ProcessEvent(event("db", "message", "10", "2"))
	require.NoError(t, tr.SeenThis(ctx, "db", "message", "10"))
	assert.False(t, tr.HasUpdates("db", "message"))
	assert.Equal(t, []string{api.CmdLastKnownVersion}, sender.commands())

	// не новее: запрос не отправляется
	require.NoError(t, tr.SeenThis(ctx, "db", "message", "9"))
	assert.Len(t, sender.commands(), 1)

	sent := sender.sent[0].payload.(api.LastKnownVersionRequest)
	assert.Equal(t, "10", sent.LastKnownVersion)
}

func TestTracker_SeenThis_Error(t *testing.T) {
	sender := &fakeSender{err: errs.NewServerError(api.CodeAccessForbidden, "no")}
	tr := newLiveTracker(sender)

	err := tr.SeenThis(context.Background(), "db", "message", "3")
	assert.True(t, errs.IsServerCode(err, api.CodeAccessForbidden))
}

func TestTracker_UnreadKegDbs(t *testing.T) {
	tr := newLiveTracker(&fakeSender{})
	tr.ProcessEvent(event("b", "message", "3", "1"))
	tr.ProcessEvent(event("a", "message", "3", "1"))
	tr.ProcessEvent(event("c", "message", "3", "3"))

	assert.Equal(t, []string{"a", "b"}, tr.UnreadKegDbs())
}

func TestTracker_LoadDigest(t *testing.T) {
	sender := &fakeSender{
		unread: []api.DigestEvent{event("room", "message", "5", "1")},
		byDb: map[string][]api.DigestEvent{
			"SELF": {event("SELF", "settings", "9", "9"), event("SELF", "boot", "1", "")},
		},
	}
	tr := New(sender, Config{}, nil)
	tr.ActivateKegDb("SELF")
	tr.ActivateKegDb("gone")
	tr.DeactivateKegDb("gone")

	var added []string
	tr.OnKegDbAdded(func(id string) { added = append(added, id) })

	require.NoError(t, tr.LoadDigest(context.Background()))
	assert.False(t, tr.Accumulating())
	assert.Equal(t, []string{"SELF", "room"}, added)
	assert.Equal(t, "9", tr.Digest("SELF", "settings").MaxUpdateID)
	assert.False(t, tr.HasUpdates("SELF", "boot"))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, api.DigestRequest{Unread: true}, sender.sent[0].payload)
	assert.Equal(t, api.DigestRequest{KegDbIDs: []string{"SELF"}}, sender.sent[1].payload)
}

func TestTracker_LoadDigest_ErrorKeepsAccumulating(t *testing.T) {
	tr := New(&fakeSender{err: errs.ErrDisconnected}, Config{}, nil)

	err := tr.LoadDigest(context.Background())
	assert.ErrorIs(t, err, errs.ErrDisconnected)
	assert.True(t, tr.Accumulating())
}

func TestTracker_SnapshotRestore(t *testing.T) {
	tr := newLiveTracker(&fakeSender{})
	tr.ProcessEvent(event("b", "message", "3", "1"))
	tr.ProcessEvent(event("a", "settings", "4", "4"))

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].KegDbID)

	other := New(&fakeSender{}, Config{}, nil)
	var added int
	other.OnKegDbAdded(func(string) { added++ })
	other.Restore(snap)
	other.Flush()

	assert.Equal(t, snap, other.Snapshot())
	assert.Zero(t, added, "restore does not notify")
}

func TestTracker_Cache(t *testing.T) {
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	fresh := New(&fakeSender{}, Config{}, nil)
	require.NoError(t, fresh.LoadCache(ctx, store), "missing cache is not an error")
	assert.Empty(t, fresh.Snapshot())

	tr := newLiveTracker(&fakeSender{})
	tr.ProcessEvent(event("db", "message", "3", "1"))
	require.NoError(t, tr.SaveCache(ctx, store))

	require.NoError(t, fresh.LoadCache(ctx, store))
	assert.Equal(t, tr.Snapshot(), fresh.Snapshot())
}

func TestTracker_CacheErrors(t *testing.T) {
	ctx := context.Background()
	broken := errors.New("disk full")
	engine := &storage.EngineMock{
		GetFunc: func(ctx context.Context, key string, v any) error { return broken },
		SetFunc: func(ctx context.Context, key string, v any) error { return broken },
	}

	tr := newLiveTracker(&fakeSender{})
	assert.ErrorIs(t, tr.SaveCache(ctx, engine), broken)
	assert.ErrorIs(t, tr.LoadCache(ctx, engine), broken)

	require.Len(t, engine.SetCalls(), 1)
	assert.Equal(t, storage.KeyDigest, engine.SetCalls()[0].Key)
	require.Len(t, engine.GetCalls(), 1)
	assert.Equal(t, storage.KeyDigest, engine.GetCalls()[0].Key)
}

func TestTracker_Run(t *testing.T) {
	sender := &fakeSender{unread: []api.DigestEvent{event("db", "message", "2", "")}}
	tr := New(sender, Config{PollInterval: time.Hour}, nil)

	var (
		mu         sync.Mutex
		onAuth     func()
		onDisc     func()
		authorized = true
	)
	conn := &session.ConnectionMock{
		SendFunc: sender.Send,
		AuthenticatedFunc: func() bool {
			mu.Lock()
			defer mu.Unlock()
			return authorized
		},
		OnAuthenticatedFunc: func(fn func()) func() {
			mu.Lock()
			onAuth = fn
			mu.Unlock()
			return func() {}
		},
		OnDisconnectedFunc: func(fn func()) func() {
			mu.Lock()
			onDisc = fn
			mu.Unlock()
			return func() {}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, conn) }()

	require.Eventually(t, func() bool { return !tr.Accumulating() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "2", tr.Digest("db", "message").MaxUpdateID)

	mu.Lock()
	disc, auth := onDisc, onAuth
	mu.Unlock()

	disc()
	assert.True(t, tr.Accumulating())

	auth()
	require.Eventually(t, func() bool { return !tr.Accumulating() }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
