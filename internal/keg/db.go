package keg

import (
	"context"
	"fmt"
	"sync"
)

// DB is the collection a keg lives in. It owns the collection keys.
type DB interface {
	ID() string
	// IsSelf reports whether this is the user's own private collection.
	IsSelf() bool
	// Key returns the collection key with the given id, or ErrNoKey.
	Key(keyID string) ([]byte, error)
	// CurrentKeyID is the key new payloads are encrypted with.
	CurrentKeyID() string
}

// Unloader is implemented by collections that can be dropped from memory
// after the server revokes access.
type Unloader interface {
	Unload(ctx context.Context)
}

// StaticDB is an in-memory collection with a fixed key set.
type StaticDB struct {
	keys      map[string][]byte
	id        string
	currentID string
	mu        sync.RWMutex
	self      bool
	unloaded  bool
}

// NewStaticDB creates a collection. key may be nil for collections whose kegs
// carry an override key.
func NewStaticDB(id string, self bool, keyID string, key []byte) *StaticDB {
	db := &StaticDB{
		keys: make(map[string][]byte),
		id:   id,
		self: self,
	}
	if key != nil {
		db.AddKey(keyID, key, true)
	}
	return db
}

func (d *StaticDB) ID() string   { return d.id }
func (d *StaticDB) IsSelf() bool { return d.self }

// Key returns the key with the given id.
func (d *StaticDB) Key(keyID string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoKey, d.id, keyID)
	}
	return key, nil
}

func (d *StaticDB) CurrentKeyID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.currentID
}

// AddKey registers a key; current makes it the key for new payloads.
func (d *StaticDB) AddKey(keyID string, key []byte, current bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[keyID] = key
	if current {
		d.currentID = keyID
	}
}

// Unload drops every key.
func (d *StaticDB) Unload(context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = make(map[string][]byte)
	d.unloaded = true
}

// Unloaded reports whether Unload was called.
func (d *StaticDB) Unloaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.unloaded
}
