package keg

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/session"
)

// TofuContacts resolves contact keys from the tofu kegs pinned in the user's
// own collection. It implements session.ContactKeys.
type TofuContacts struct {
	sess     *session.Session
	db       DB
	contacts map[string]*session.Contact
	mu       sync.Mutex
	fetched  bool
}

var _ session.ContactKeys = (*TofuContacts)(nil)

// NewTofuContacts creates a resolver over db (normally the BootDB).
func NewTofuContacts(sess *session.Session, db DB) *TofuContacts {
	return &TofuContacts{
		sess:     sess,
		db:       db,
		contacts: make(map[string]*session.Contact),
	}
}

// Contact returns pinned keys for username, fetching the tofu kegs once on
// the first miss.
func (t *TofuContacts) Contact(ctx context.Context, username string) (*session.Contact, error) {
	t.mu.Lock()
	c, ok := t.contacts[username]
	fetched := t.fetched
	t.mu.Unlock()
	if ok {
		return c, nil
	}
	if !fetched {
		if err := t.Refresh(ctx); err != nil {
			return nil, err
		}
		t.mu.Lock()
		c, ok = t.contacts[username]
		t.mu.Unlock()
		if ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", session.ErrContactNotFound, username)
}

// Refresh re-reads every tofu keg.
func (t *TofuContacts) Refresh(ctx context.Context) error {
	kegs, err := ListKegs(ctx, t.sess, t.db, KindTofu, ListOptions{})
	if err != nil && len(kegs) == 0 {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range kegs {
		tofu, ok := k.Content.(*TofuContent)
		if !ok {
			continue
		}
		if c := tofuContact(tofu); c != nil {
			// первая запись выигрывает: ключ закреплён при первом знакомстве
			if _, exists := t.contacts[c.Username]; !exists {
				t.contacts[c.Username] = c
			}
		}
	}
	t.fetched = true
	return nil
}

// Pin stores a contact's keys unless keys for that username are already
// pinned; pinned keys are never replaced.
func (t *TofuContacts) Pin(ctx context.Context, contact *session.Contact) error {
	if _, err := t.Contact(ctx, contact.Username); err == nil {
		return nil
	}

	content := &TofuContent{
		Username:            contact.Username,
		SigningPublicKey:    contact.SigningPublicKey,
		EncryptionPublicKey: contact.EncryptionPublicKey[:],
	}
	k := New(t.sess, t.db, KindTofu, content)
	if err := k.SaveToServer(ctx); err != nil {
		return fmt.Errorf("failed to pin keys of %s: %w", contact.Username, err)
	}

	t.mu.Lock()
	t.contacts[contact.Username] = contact
	t.mu.Unlock()
	return nil
}

func tofuContact(c *TofuContent) *session.Contact {
	if c.Username == "" || len(c.SigningPublicKey) != ed25519.PublicKeySize || len(c.EncryptionPublicKey) != crypto.KeySize {
		return nil
	}
	contact := &session.Contact{
		Username:         c.Username,
		SigningPublicKey: ed25519.PublicKey(c.SigningPublicKey),
	}
	copy(contact.EncryptionPublicKey[:], c.EncryptionPublicKey)
	return contact
}
