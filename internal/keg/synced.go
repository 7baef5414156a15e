package keg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/iudanet/kegkeeper/internal/digest"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// SyncedKeg is the single named keg of its type in a collection. Every load
// and save goes through one FIFO queue, so at most one network operation on
// it runs at a time, in submission order.
type SyncedKeg struct {
	keg     *Keg
	name    string
	tracker *digest.Tracker
	queue   *TaskQueue
	unsubs  []func()

	mu        sync.Mutex
	listeners []func()
	loaded    bool
}

// NewSynced creates the synced keg and schedules its first load as soon as
// the connection is authenticated.
func NewSynced(sess *session.Session, db DB, tracker *digest.Tracker, name string, content Content) *SyncedKeg {
	k := NewNamed(sess, db, name, content)
	k.AllowEmpty = true

	s := &SyncedKeg{
		keg:     k,
		name:    name,
		tracker: tracker,
		queue:   NewTaskQueue(DefaultQueueDepth, k.logger),
	}

	s.unsubs = append(s.unsubs,
		tracker.Subscribe(db.ID(), name, func(models.DigestEntry) { s.scheduleReload() }),
		sess.Conn.OnAuthenticated(s.scheduleReload),
	)
	if sess.Conn.Authenticated() {
		s.scheduleReload()
	}
	return s
}

// Keg returns the underlying keg. Read it only from OnUpdated callbacks or
// after Reload/Save returned.
func (s *SyncedKeg) Keg() *Keg {
	return s.keg
}

// OnUpdated registers fn to run after every load that brought new data.
func (s *SyncedKeg) OnUpdated(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Loaded reports whether the keg has been loaded at least once.
func (s *SyncedKeg) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *SyncedKeg) scheduleReload() {
	// если очередь полна, reload уже стоит в ней
	s.queue.TryPush("reload "+s.name, s.reload)
}

// Reload loads the keg if the digest says the server has a newer version.
func (s *SyncedKeg) Reload(ctx context.Context) error {
	return s.queue.Do(ctx, "reload "+s.name, s.reload)
}

func (s *SyncedKeg) reload(ctx context.Context) error {
	k := s.keg
	entry := s.tracker.Digest(k.DB.ID(), s.name)

	if s.Loaded() && models.CompareUpdateID(entry.MaxUpdateID, k.CollectionVersion) <= 0 {
		return nil
	}

	if err := k.Load(ctx); err != nil {
		if errs.IsServerCode(err, api.CodeAccessForbidden) {
			if u, ok := k.DB.(Unloader); ok {
				u.Unload(ctx)
			}
		}
		return err
	}

	s.mu.Lock()
	s.loaded = true
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	if k.CollectionVersion != "" {
		if err := s.tracker.SeenThis(ctx, k.DB.ID(), s.name, k.CollectionVersion); err != nil {
			k.logger.Warn("failed to acknowledge synced keg", "error", err)
		}
	}
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Save applies mutate and saves. mutate returning false cancels the save.
// On failure the local change is rolled back, unless someone else changed the
// version in the meantime, by calling restore or, when restore is nil, by
// restoring the pre-mutation payload and props. onErr, if set, receives the
// error as well.
func (s *SyncedKeg) Save(ctx context.Context, mutate func(Content) bool, restore func(), onErr func(error)) error {
	return s.queue.Do(ctx, "save "+s.name, func(ctx context.Context) error {
		err := s.save(ctx, mutate, restore)
		if err != nil && onErr != nil {
			onErr(err)
		}
		return err
	})
}

type contentSnapshot struct {
	props   map[string]json.RawMessage
	payload []byte
}

func (s *SyncedKeg) save(ctx context.Context, mutate func(Content) bool, restore func()) error {
	k := s.keg

	snap, err := snapshotContent(k.Content)
	if err != nil {
		return err
	}
	if !mutate(k.Content) {
		return nil
	}
	k.Dirty = true

	base, err := k.saveToServer(ctx)
	if err != nil {
		// откат, только если версию никто не сдвинул после create
		if k.Version == base {
			if restore != nil {
				restore()
			} else if rerr := snap.restore(k.Content); rerr != nil {
				k.logger.Error("failed to roll back synced keg", "error", rerr)
			}
		}
		return err
	}
	return nil
}

func snapshotContent(c Content) (contentSnapshot, error) {
	payload, err := c.EncodePayload()
	if err != nil {
		return contentSnapshot{}, fmt.Errorf("failed to snapshot keg: %w", err)
	}
	snap := contentSnapshot{payload: payload}
	if codec, ok := c.(PropsCodec); ok {
		if snap.props, err = codec.EncodeProps(); err != nil {
			return contentSnapshot{}, fmt.Errorf("failed to snapshot keg props: %w", err)
		}
	}
	return snap, nil
}

func (snap contentSnapshot) restore(c Content) error {
	if codec, ok := c.(PropsCodec); ok {
		if err := codec.DecodeProps(snap.props); err != nil {
			return err
		}
	}
	return c.DecodePayload(snap.payload)
}

// Close stops the queue and drops the subscriptions.
func (s *SyncedKeg) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.queue.Close()
}
