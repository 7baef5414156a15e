// Package session holds the per-user context passed explicitly into every
// client component: the connection, the user's key material and the
// contact-key resolver.
package session

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/iudanet/kegkeeper/internal/crypto"
)

//go:generate moq -out connection_mock.go . Connection

// Sender is the request/response channel to the server.
// resp may be nil when the caller does not need the reply.
type Sender interface {
	Send(ctx context.Context, command string, payload, resp any) error
}

// Connection is a Sender with an observable authentication state.
type Connection interface {
	Sender

	// Authenticated reports whether requests can be sent right now.
	Authenticated() bool

	// WaitAuthenticated blocks until the connection is authenticated or ctx is done.
	WaitAuthenticated(ctx context.Context) error

	// OnAuthenticated registers fn to run on every transition to authenticated.
	OnAuthenticated(fn func()) (unsubscribe func())

	// OnDisconnected registers fn to run on every loss of authentication.
	OnDisconnected(fn func()) (unsubscribe func())
}

// ErrContactNotFound is returned by ContactKeys for unknown usernames.
var ErrContactNotFound = errors.New("contact not found")

// Contact is the trusted public key material of a user.
type Contact struct {
	Username            string
	SigningPublicKey    ed25519.PublicKey
	EncryptionPublicKey [crypto.KeySize]byte
}

// ContactKeys resolves the known keys of other users.
type ContactKeys interface {
	Contact(ctx context.Context, username string) (*Contact, error)
}

// User is the signed-in user's identity and key material.
type User struct {
	Signing        *crypto.SigningKeyPair
	Username       string
	EncryptionKeys crypto.KeyPair
	BootKey        [crypto.KeySize]byte
}

// Contact returns the user's own public keys.
func (u *User) Contact() *Contact {
	return &Contact{
		Username:            u.Username,
		SigningPublicKey:    u.Signing.PublicKey,
		EncryptionPublicKey: u.EncryptionKeys.PublicKey,
	}
}

// Session bundles everything a component needs. Multiple sessions can coexist.
type Session struct {
	Conn     Connection
	User     *User
	Contacts ContactKeys
	Logger   *slog.Logger
}

// New creates a session; a nil logger discards output.
func New(conn Connection, user *User, contacts ContactKeys, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		Conn:     conn,
		User:     user,
		Contacts: contacts,
		Logger:   logger,
	}
}

// ResolveContact returns keys for username, answering for the session user directly.
func (s *Session) ResolveContact(ctx context.Context, username string) (*Contact, error) {
	if s.User != nil && username == s.User.Username {
		return s.User.Contact(), nil
	}
	if s.Contacts == nil {
		return nil, fmt.Errorf("%w: %s", ErrContactNotFound, username)
	}
	return s.Contacts.Contact(ctx, username)
}
