package keg

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// BootKegID is the id of the boot keg in the SELF collection.
const BootKegID = "boot"

// BootDB is the user's own collection; its keys come from the boot keg.
type BootDB struct {
	content *BootContent
	mu      sync.RWMutex
}

// NewBootDB wraps loaded boot content.
func NewBootDB(content *BootContent) *BootDB {
	return &BootDB{content: content}
}

func (d *BootDB) ID() string   { return api.SelfKegDbID }
func (d *BootDB) IsSelf() bool { return true }

func (d *BootDB) Key(keyID string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.content.KegKeys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoKey, api.SelfKegDbID, keyID)
	}
	return key, nil
}

func (d *BootDB) CurrentKeyID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.content.CurrentKeyID
}

// OpenBoot loads the boot keg with the session user's boot key, creating it
// with fresh keys on first use, and fills the user's signing and encryption
// keys from it.
func OpenBoot(ctx context.Context, sess *session.Session) (*BootDB, error) {
	user := sess.User
	if user == nil {
		return nil, fmt.Errorf("%w: no session user", errs.ErrDecryption)
	}

	content := &BootContent{}
	k := NewNamed(sess, NewStaticDB(api.SelfKegDbID, true, "", nil), BootKegID, content)
	k.OverrideKey = user.BootKey[:]
	k.AllowEmpty = true

	if err := k.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load boot keg: %w", err)
	}

	if !k.Created() || len(content.KegKeys) == 0 {
		if err := newBootContent(content); err != nil {
			return nil, err
		}
		if err := k.SaveToServer(ctx); err != nil {
			return nil, fmt.Errorf("failed to create boot keg: %w", err)
		}
		sess.Logger.Info("boot keg created", "username", user.Username)
	}

	if err := applyBoot(user, content); err != nil {
		return nil, err
	}
	return NewBootDB(content), nil
}

func newBootContent(c *BootContent) error {
	signing, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return err
	}
	box, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return err
	}
	kegKey, err := crypto.NewKey()
	if err != nil {
		return err
	}
	keyID := uuid.NewString()

	*c = BootContent{
		KegKeys:             map[string][]byte{keyID: kegKey},
		CurrentKeyID:        keyID,
		SigningPublicKey:    signing.PublicKey,
		SigningSecretKey:    signing.SecretKey,
		EncryptionPublicKey: box.PublicKey[:],
		EncryptionSecretKey: box.SecretKey[:],
	}
	return nil
}

func applyBoot(user *session.User, c *BootContent) error {
	if len(c.SigningSecretKey) != ed25519.PrivateKeySize || len(c.EncryptionSecretKey) != crypto.KeySize {
		return fmt.Errorf("%w: boot keg holds malformed keys", errs.ErrDecryption)
	}
	user.Signing = &crypto.SigningKeyPair{
		PublicKey: ed25519.PublicKey(c.SigningPublicKey),
		SecretKey: ed25519.PrivateKey(c.SigningSecretKey),
	}
	kp, err := crypto.BoxKeyPairFromSecret(c.EncryptionSecretKey)
	if err != nil {
		return err
	}
	user.EncryptionKeys = kp
	return nil
}
