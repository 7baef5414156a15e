package cli

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/internal/validation"
)

func (c *Cli) runKeys(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return c.usageError("keys")
	}
	return c.withWorkspace(ctx, func(w *workspace) error {
		me := w.sess.User.Contact()
		c.io.Printf("Username:       %s\n", me.Username)
		c.io.Printf("Signing key:    %s\n", base64.StdEncoding.EncodeToString(me.SigningPublicKey))
		c.io.Printf("Encryption key: %s\n", base64.StdEncoding.EncodeToString(me.EncryptionPublicKey[:]))
		c.io.Println()
		c.io.Printf("Others can trust you with:\n  kegkeeper trust %s %s %s\n",
			me.Username,
			base64.StdEncoding.EncodeToString(me.SigningPublicKey),
			base64.StdEncoding.EncodeToString(me.EncryptionPublicKey[:]))
		return nil
	})
}

func (c *Cli) runTrust(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return c.usageError("trust")
	}
	contact, err := parseContact(args[0], args[1], args[2])
	if err != nil {
		return err
	}

	return c.withWorkspace(ctx, func(w *workspace) error {
		if err := w.contacts.Pin(ctx, contact); err != nil {
			return err
		}
		// ключи закрепляются один раз; показываем то, что в итоге закреплено
		pinned, err := w.contacts.Contact(ctx, contact.Username)
		if err != nil {
			return err
		}
		if !pinned.SigningPublicKey.Equal(contact.SigningPublicKey) || pinned.EncryptionPublicKey != contact.EncryptionPublicKey {
			return fmt.Errorf("%s is already pinned with different keys", contact.Username)
		}
		c.io.Printf("✓ Keys of %s are trusted\n", contact.Username)
		return nil
	})
}

func parseContact(username, signingB64, encryptionB64 string) (*session.Contact, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	signing, err := base64.StdEncoding.DecodeString(signingB64)
	if err != nil || len(signing) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid signing key: want %d base64 bytes", ed25519.PublicKeySize)
	}
	encryption, err := base64.StdEncoding.DecodeString(encryptionB64)
	if err != nil || len(encryption) != crypto.KeySize {
		return nil, fmt.Errorf("invalid encryption key: want %d base64 bytes", crypto.KeySize)
	}

	contact := &session.Contact{
		Username:         username,
		SigningPublicKey: ed25519.PublicKey(signing),
	}
	copy(contact.EncryptionPublicKey[:], encryption)
	return contact, nil
}
