package keg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/digest"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/pkg/api"
)

func setTheme(value string) func(Content) bool {
	return func(c Content) bool {
		return c.(*SettingsContent).Set("theme", value)
	}
}

func newSyncedSettings(t *testing.T, srv *fakeServer, db DB) (*SyncedKeg, *digest.Tracker) {
	t.Helper()
	sess := newTestSession(t, srv, newTestUser(t, "alice"))
	tracker := digest.New(srv, digest.Config{}, nil)
	tracker.Flush()
	s := NewSynced(sess, db, tracker, KindSettings, &SettingsContent{})
	t.Cleanup(s.Close)

	// первая загрузка запускается сама, так как соединение уже авторизовано
	require.Eventually(t, s.Loaded, time.Second, time.Millisecond)
	return s, tracker
}

func TestSyncedKeg_SaveSerialization(t *testing.T) {
	srv := newFakeServer("alice")
	s, _ := newSyncedSettings(t, srv, newRoomDB(t, "room"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, setTheme("light"), nil, nil))
	base := s.Keg().Version

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	for _, v := range []string{"dark", "blue"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- s.Save(ctx, setTheme(v), nil, nil)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, 1, srv.maxInFlight, "saves never overlap")
	require.Len(t, srv.updates, 3)
	assert.Equal(t, base+1, srv.updates[1].Version)
	assert.Equal(t, base+2, srv.updates[2].Version)
	assert.Equal(t, base+2, s.Keg().Version)
}

func TestSyncedKeg_SaveCancelledByMutate(t *testing.T) {
	srv := newFakeServer("alice")
	s, _ := newSyncedSettings(t, srv, newRoomDB(t, "room"))

	require.NoError(t, s.Save(context.Background(), func(Content) bool { return false }, nil, nil))
	assert.Zero(t, srv.count(api.CmdKegUpdate))
	assert.Zero(t, srv.count(api.CmdKegCreate))
}

func TestSyncedKeg_SaveRollback(t *testing.T) {
	srv := newFakeServer("alice")
	s, _ := newSyncedSettings(t, srv, newRoomDB(t, "room"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, setTheme("light"), nil, nil))

	srv.mu.Lock()
	srv.fail = func(command string, _ any) error {
		if command == api.CmdKegUpdate {
			return errs.NewServerError(api.CodeQuotaExceeded, "full")
		}
		return nil
	}
	srv.mu.Unlock()

	t.Run("default restore", func(t *testing.T) {
		var gotErr error
		err := s.Save(ctx, setTheme("dark"), nil, func(err error) { gotErr = err })
		assert.True(t, errs.IsServerCode(err, api.CodeQuotaExceeded))
		assert.Equal(t, err, gotErr)

		theme, _ := s.Keg().Content.(*SettingsContent).Get("theme")
		assert.Equal(t, "light", theme)
	})

	t.Run("custom restore", func(t *testing.T) {
		restored := false
		err := s.Save(ctx, setTheme("dark"), func() {
			restored = true
			s.Keg().Content.(*SettingsContent).Set("theme", "light")
		}, nil)
		assert.Error(t, err)
		assert.True(t, restored)
	})
}

func TestSyncedKeg_FirstSaveRollback(t *testing.T) {
	srv := newFakeServer("alice")
	srv.fail = func(command string, _ any) error {
		if command == api.CmdKegUpdate {
			return errs.NewServerError(api.CodeQuotaExceeded, "full")
		}
		return nil
	}
	s, _ := newSyncedSettings(t, srv, newRoomDB(t, "room"))
	ctx := context.Background()
	require.False(t, s.Keg().Created())
	require.Equal(t, 1, s.Keg().Version)

	err := s.Save(ctx, setTheme("dark"), nil, nil)
	assert.True(t, errs.IsServerCode(err, api.CodeQuotaExceeded))

	// create прошёл, update нет: на сервере пустая версия 1
	assert.True(t, s.Keg().Created())
	assert.Equal(t, 1, s.Keg().Version)
	_, ok := s.Keg().Content.(*SettingsContent).Get("theme")
	assert.False(t, ok, "rejected value is rolled back")

	srv.mu.Lock()
	srv.fail = nil
	srv.mu.Unlock()

	require.NoError(t, s.Save(ctx, setTheme("dark"), nil, nil))
	assert.Equal(t, 2, s.Keg().Version)
	assert.Equal(t, 1, srv.count(api.CmdKegCreate))
}

func TestSyncedKeg_ErrorsAreNormalized(t *testing.T) {
	srv := newFakeServer("alice")
	s, _ := newSyncedSettings(t, srv, newRoomDB(t, "room"))

	s.Close()
	err := s.Save(context.Background(), setTheme("dark"), nil, nil)
	assert.ErrorIs(t, err, errs.ErrUserCancel)
	assert.ErrorIs(t, err, ErrQueueClosed)
	err = s.Reload(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestSyncedKeg_Reload(t *testing.T) {
	srv := newFakeServer("alice")
	s, tracker := newSyncedSettings(t, srv, newRoomDB(t, "room"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, setTheme("light"), nil, nil))
	gets := srv.count(api.CmdKegGet)

	// дайджест не опережает локальную версию: сети нет
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, gets, srv.count(api.CmdKegGet))

	// другое устройство сохранило новую версию
	other := NewNamed(newTestSession(t, srv, newTestUser(t, "alice")), s.Keg().DB, KindSettings, &SettingsContent{})
	require.NoError(t, other.Load(ctx))
	other.Content.(*SettingsContent).Set("theme", "neon")
	require.NoError(t, other.SaveToServer(ctx))

	var updated int
	s.OnUpdated(func() { updated++ })

	tracker.ProcessEvent(api.DigestEvent{
		KegDbID:     "room",
		Type:        KindSettings,
		MaxUpdateID: other.CollectionVersion,
	})

	require.Eventually(t, func() bool {
		return s.Reload(ctx) == nil && s.Keg().CollectionVersion == other.CollectionVersion
	}, time.Second, 5*time.Millisecond)

	theme, _ := s.Keg().Content.(*SettingsContent).Get("theme")
	assert.Equal(t, "neon", theme)
	assert.Equal(t, 1, updated)
	assert.False(t, tracker.HasUpdates("room", KindSettings), "reload acknowledges the digest")
	assert.Equal(t, 1, srv.count(api.CmdLastKnownVersion))
}

func TestSyncedKeg_AccessForbiddenUnloadsDB(t *testing.T) {
	srv := newFakeServer("alice")
	srv.fail = func(command string, _ any) error {
		if command == api.CmdKegGet {
			return errs.NewServerError(api.CodeAccessForbidden, "kicked")
		}
		return nil
	}
	db := newRoomDB(t, "room")
	sess := newTestSession(t, srv, newTestUser(t, "alice"))
	tracker := digest.New(srv, digest.Config{}, nil)
	s := NewSynced(sess, db, tracker, KindSettings, &SettingsContent{})
	defer s.Close()

	err := s.Reload(context.Background())
	assert.True(t, errs.IsServerCode(err, api.CodeAccessForbidden))
	assert.True(t, db.Unloaded())
}

func TestSyncedKeg_ReloadOnAuthenticated(t *testing.T) {
	srv := newFakeServer("alice")
	srv.SetDisconnected()
	sess := newTestSession(t, srv, newTestUser(t, "alice"))
	tracker := digest.New(srv, digest.Config{}, nil)

	s := NewSynced(sess, newRoomDB(t, "room"), tracker, KindSettings, &SettingsContent{})
	defer s.Close()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Loaded())

	srv.SetAuthenticated()
	require.Eventually(t, s.Loaded, time.Second, time.Millisecond)
}
