// Package digest tracks, per (collection, keg type), how far the server has
// advanced compared to what this client has acknowledged, and notifies
// subscribers when that changes.
package digest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/kegkeeper/internal/client/storage"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// Keg types that are never re-fetched after creation; their digest is
// acknowledged as soon as it arrives.
const (
	TypeBoot = "boot"
	TypeTofu = "tofu"
)

// DefaultPollInterval is used by Run when Config.PollInterval is zero.
const DefaultPollInterval = 30 * time.Second

// Config configures a Tracker.
type Config struct {
	// AutoAckTypes are acknowledged on arrival in addition to boot and tofu.
	AutoAckTypes []string      `env:"DIGEST_AUTO_ACK_TYPES" envSeparator:","`
	PollInterval time.Duration `env:"DIGEST_POLL_INTERVAL" envDefault:"30s"`
}

type typeKey struct {
	db  string
	typ string
}

// Tracker holds digest[kegDbID][type].
//
// In accumulating mode notifications are collected into sets and fired once
// by Flush; in live mode they fire as events are applied.
type Tracker struct {
	sender session.Sender
	logger *slog.Logger

	digest  map[string]map[string]models.DigestEntry
	seenDbs map[string]struct{}
	active  map[string]struct{}
	autoAck map[string]struct{}

	pendingTypes map[typeKey]struct{}
	pendingDbs   map[string]struct{}

	typeSubs  map[typeKey]map[int]func(models.DigestEntry)
	dbAddSubs map[int]func(string)

	pollInterval time.Duration
	nextSubID    int
	mu           sync.Mutex
	accumulating bool
}

// New creates a Tracker in accumulating mode: nothing fires until the first
// LoadDigest or Flush.
func New(sender session.Sender, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	t := &Tracker{
		sender:       sender,
		logger:       logger,
		digest:       make(map[string]map[string]models.DigestEntry),
		seenDbs:      make(map[string]struct{}),
		active:       make(map[string]struct{}),
		autoAck:      map[string]struct{}{TypeBoot: {}, TypeTofu: {}},
		pendingTypes: make(map[typeKey]struct{}),
		pendingDbs:   make(map[string]struct{}),
		typeSubs:     make(map[typeKey]map[int]func(models.DigestEntry)),
		dbAddSubs:    make(map[int]func(string)),
		pollInterval: cfg.PollInterval,
		accumulating: true,
	}
	for _, typ := range cfg.AutoAckTypes {
		t.autoAck[typ] = struct{}{}
	}
	return t
}

// Subscribe calls fn every time the digest of (kegDbID, kegType) changes.
func (t *Tracker) Subscribe(kegDbID, kegType string, fn func(models.DigestEntry)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typeKey{db: kegDbID, typ: kegType}
	if t.typeSubs[key] == nil {
		t.typeSubs[key] = make(map[int]func(models.DigestEntry))
	}
	id := t.nextSubID
	t.nextSubID++
	t.typeSubs[key][id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.typeSubs[key], id)
	}
}

// OnKegDbAdded calls fn the first time a collection shows up in the digest.
func (t *Tracker) OnKegDbAdded(fn func(kegDbID string)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSubID
	t.nextSubID++
	t.dbAddSubs[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.dbAddSubs, id)
	}
}

// ProcessEvent applies ev if it changes anything and is not older than the
// stored entry.
func (t *Tracker) ProcessEvent(ev api.DigestEvent) {
	t.mu.Lock()
	fire := t.applyLocked(ev)
	t.mu.Unlock()

	fire()
}

func noop() {}

func (t *Tracker) applyLocked(ev api.DigestEvent) func() {
	if ev.KegDbID == "" || ev.Type == "" {
		return noop
	}

	entry := models.DigestEntry{
		KegDbID:       ev.KegDbID,
		Type:          ev.Type,
		MaxUpdateID:   ev.MaxUpdateID,
		KnownUpdateID: ev.KnownUpdateID,
		NewKegsCount:  ev.NewKegsCount,
	}

	old, exists := t.digest[ev.KegDbID][ev.Type]
	if exists {
		if models.CompareUpdateID(entry.MaxUpdateID, old.MaxUpdateID) < 0 {
			return noop
		}
		// known никогда не откатывается назад
		entry.KnownUpdateID = models.MaxUpdateID(old.KnownUpdateID, entry.KnownUpdateID)
	}
	if models.CompareUpdateID(entry.KnownUpdateID, entry.MaxUpdateID) > 0 {
		entry.KnownUpdateID = entry.MaxUpdateID
	}
	if _, ok := t.autoAck[entry.Type]; ok {
		entry.KnownUpdateID = entry.MaxUpdateID
	}
	if exists && entry == old {
		return noop
	}

	if t.digest[entry.KegDbID] == nil {
		t.digest[entry.KegDbID] = make(map[string]models.DigestEntry)
	}
	t.digest[entry.KegDbID][entry.Type] = entry

	_, seen := t.seenDbs[entry.KegDbID]
	t.seenDbs[entry.KegDbID] = struct{}{}

	key := typeKey{db: entry.KegDbID, typ: entry.Type}
	if t.accumulating {
		t.pendingTypes[key] = struct{}{}
		if !seen {
			t.pendingDbs[entry.KegDbID] = struct{}{}
		}
		return noop
	}

	var dbFns []func(string)
	if !seen {
		dbFns = t.dbAddCallbacksLocked()
	}
	typeFns := t.typeCallbacksLocked(key)
	return func() {
		for _, fn := range dbFns {
			fn(entry.KegDbID)
		}
		for _, fn := range typeFns {
			fn(entry)
		}
	}
}

func (t *Tracker) typeCallbacksLocked(key typeKey) []func(models.DigestEntry) {
	subs := t.typeSubs[key]
	fns := make([]func(models.DigestEntry), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return fns
}

func (t *Tracker) dbAddCallbacksLocked() []func(string) {
	fns := make([]func(string), 0, len(t.dbAddSubs))
	for _, fn := range t.dbAddSubs {
		fns = append(fns, fn)
	}
	return fns
}

// Accumulate switches to accumulating mode.
func (t *Tracker) Accumulate() {
	t.mu.Lock()
	t.accumulating = true
	t.mu.Unlock()
}

// Accumulating reports the current mode.
func (t *Tracker) Accumulating() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accumulating
}

// Flush fires every buffered notification once and switches to live mode.
func (t *Tracker) Flush() {
	t.mu.Lock()
	t.accumulating = false

	type typeNote struct {
		entry models.DigestEntry
		fns   []func(models.DigestEntry)
	}
	dbs := make([]string, 0, len(t.pendingDbs))
	for db := range t.pendingDbs {
		dbs = append(dbs, db)
	}
	sort.Strings(dbs)
	dbFns := t.dbAddCallbacksLocked()

	notes := make([]typeNote, 0, len(t.pendingTypes))
	for key := range t.pendingTypes {
		notes = append(notes, typeNote{
			entry: t.digest[key.db][key.typ],
			fns:   t.typeCallbacksLocked(key),
		})
	}
	t.pendingDbs = make(map[string]struct{})
	t.pendingTypes = make(map[typeKey]struct{})
	t.mu.Unlock()

	for _, db := range dbs {
		for _, fn := range dbFns {
			fn(db)
		}
	}
	for _, n := range notes {
		for _, fn := range n.fns {
			fn(n.entry)
		}
	}
}

// Digest returns the entry for (kegDbID, kegType); the zero entry if unknown.
func (t *Tracker) Digest(kegDbID, kegType string) models.DigestEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.digest[kegDbID][kegType]
	if !ok {
		return models.DigestEntry{KegDbID: kegDbID, Type: kegType}
	}
	return entry
}

// HasUpdates reports whether (kegDbID, kegType) has unacknowledged updates.
func (t *Tracker) HasUpdates(kegDbID, kegType string) bool {
	return t.Digest(kegDbID, kegType).HasUpdates()
}

// UnreadKegDbs lists the collections with at least one unacknowledged type.
func (t *Tracker) UnreadKegDbs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	for db, types := range t.digest {
		for _, entry := range types {
			if entry.HasUpdates() {
				ids = append(ids, db)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// SeenThis acknowledges updates of (kegDbID, kegType) up to updateID, locally
// and on the server. Ids not newer than the acknowledged one are ignored.
func (t *Tracker) SeenThis(ctx context.Context, kegDbID, kegType, updateID string) error {
	t.mu.Lock()
	entry, ok := t.digest[kegDbID][kegType]
	if !ok {
		entry = models.DigestEntry{KegDbID: kegDbID, Type: kegType}
	}
	if updateID == "" || models.CompareUpdateID(updateID, entry.KnownUpdateID) <= 0 {
		t.mu.Unlock()
		return nil
	}
	entry.KnownUpdateID = updateID
	entry.MaxUpdateID = models.MaxUpdateID(entry.MaxUpdateID, updateID)
	if t.digest[kegDbID] == nil {
		t.digest[kegDbID] = make(map[string]models.DigestEntry)
	}
	t.digest[kegDbID][kegType] = entry
	t.mu.Unlock()

	req := api.LastKnownVersionRequest{
		KegDbID:          kegDbID,
		Type:             kegType,
		LastKnownVersion: updateID,
	}
	if err := t.sender.Send(ctx, api.CmdLastKnownVersion, req, nil); err != nil {
		return fmt.Errorf("failed to acknowledge %s/%s: %w", kegDbID, kegType, errs.Normalize(err))
	}
	return nil
}

// ActivateKegDb marks kegDbID as needing a full digest refresh on reconnect.
func (t *Tracker) ActivateKegDb(kegDbID string) {
	t.mu.Lock()
	t.active[kegDbID] = struct{}{}
	t.mu.Unlock()
}

// DeactivateKegDb reverses ActivateKegDb.
func (t *Tracker) DeactivateKegDb(kegDbID string) {
	t.mu.Lock()
	delete(t.active, kegDbID)
	t.mu.Unlock()
}

func (t *Tracker) activeKegDbs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadDigest re-fetches the digest of unread and active collections in
// accumulating mode, then flushes. On failure the tracker stays accumulating.
func (t *Tracker) LoadDigest(ctx context.Context) error {
	t.Accumulate()

	if err := t.fetch(ctx, api.DigestRequest{Unread: true}); err != nil {
		return err
	}
	if active := t.activeKegDbs(); len(active) > 0 {
		if err := t.fetch(ctx, api.DigestRequest{KegDbIDs: active}); err != nil {
			return err
		}
	}

	t.Flush()
	return nil
}

func (t *Tracker) fetch(ctx context.Context, req api.DigestRequest) error {
	var resp api.DigestResponse
	if err := t.sender.Send(ctx, api.CmdDigest, req, &resp); err != nil {
		return fmt.Errorf("failed to load digest: %w", errs.Normalize(err))
	}
	for _, ev := range resp.Events {
		t.ProcessEvent(ev)
	}
	return nil
}

// Run keeps the digest current until ctx is done: it reloads on every
// authentication, polls while authenticated and switches to accumulating
// mode on disconnect.
func (t *Tracker) Run(ctx context.Context, conn session.Connection) error {
	reload := make(chan struct{}, 1)
	trigger := func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	}

	unsubAuth := conn.OnAuthenticated(trigger)
	defer unsubAuth()
	unsubDisc := conn.OnDisconnected(t.Accumulate)
	defer unsubDisc()

	if conn.Authenticated() {
		trigger()
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !conn.Authenticated() {
				continue
			}
		case <-reload:
		}

		if err := t.LoadDigest(ctx); err != nil {
			if errors.Is(err, errs.ErrUserCancel) {
				return ctx.Err()
			}
			t.logger.Warn("digest reload failed", "error", err)
		}
	}
}

// Snapshot returns every entry, for caching.
func (t *Tracker) Snapshot() []models.DigestEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []models.DigestEntry
	for _, types := range t.digest {
		for _, entry := range types {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].KegDbID != entries[j].KegDbID {
			return entries[i].KegDbID < entries[j].KegDbID
		}
		return entries[i].Type < entries[j].Type
	})
	return entries
}

// Restore loads cached entries without firing notifications. Entries already
// known and newer are kept.
func (t *Tracker) Restore(entries []models.DigestEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range entries {
		old, ok := t.digest[entry.KegDbID][entry.Type]
		if ok && models.CompareUpdateID(entry.MaxUpdateID, old.MaxUpdateID) <= 0 {
			continue
		}
		if t.digest[entry.KegDbID] == nil {
			t.digest[entry.KegDbID] = make(map[string]models.DigestEntry)
		}
		t.digest[entry.KegDbID][entry.Type] = entry
		t.seenDbs[entry.KegDbID] = struct{}{}
	}
}

// SaveCache persists a snapshot under storage.KeyDigest.
func (t *Tracker) SaveCache(ctx context.Context, engine storage.Engine) error {
	if err := engine.Set(ctx, storage.KeyDigest, t.Snapshot()); err != nil {
		return fmt.Errorf("failed to cache digest: %w", err)
	}
	return nil
}

// LoadCache restores the snapshot saved by SaveCache, if any.
func (t *Tracker) LoadCache(ctx context.Context, engine storage.Engine) error {
	var entries []models.DigestEntry
	if err := engine.Get(ctx, storage.KeyDigest, &entries); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load digest cache: %w", err)
	}
	t.Restore(entries)
	return nil
}
