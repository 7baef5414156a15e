package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/kegkeeper/internal/client/api"
	"github.com/iudanet/kegkeeper/internal/client/storage"
	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/digest"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/keg"
	"github.com/iudanet/kegkeeper/internal/retry"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/internal/transfer"
)

// workspace is an opened account: a connected session with the boot
// collection loaded and every client component wired to it.
type workspace struct {
	account  *storage.Account
	conn     *api.Client
	sess     *session.Session
	boot     *keg.BootDB
	contacts *keg.TofuContacts
	tracker  *digest.Tracker
	retrier  *retry.Engine
	markers  *transfer.Markers
	manager  *transfer.Manager
}

// open loads the stored account and opens it with the passphrase.
func (c *Cli) open(ctx context.Context) (*workspace, error) {
	account, err := c.store.GetAccount(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, fmt.Errorf("not logged in. Please run 'kegkeeper login' first")
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	passphrase, err := c.getPassphrase()
	if err != nil {
		return nil, err
	}
	return c.openAccount(ctx, account, passphrase)
}

// openAccount derives the account keys, connects and loads the boot keg.
// A wrong passphrase or salt surfaces as errs.ErrDecryption.
func (c *Cli) openAccount(ctx context.Context, account *storage.Account, passphrase string) (*workspace, error) {
	keys, err := crypto.DeriveAccountKeys(account.Username, passphrase, account.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keys: %w", err)
	}

	serverURL := account.ServerURL
	if serverURL == "" {
		serverURL = c.cfg.ServerURL
	}
	conn := api.NewClient(serverURL, c.logger)
	conn.SetToken(account.Token)
	if err := conn.Connect(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}

	user := &session.User{Username: account.Username, BootKey: keys.BootKey}
	sess := session.New(conn, user, nil, c.logger)
	retrier := retry.New(c.cfg.Retry, conn, c.logger)

	boot, err := retry.DoValue(ctx, retrier, "boot", func(ctx context.Context) (*keg.BootDB, error) {
		return keg.OpenBoot(ctx, sess)
	})
	if err != nil {
		conn.Close()
		if errors.Is(err, errs.ErrDecryption) || errors.Is(err, errs.ErrAntiTamper) {
			return nil, fmt.Errorf("cannot open account %s (wrong passphrase or salt?): %w", account.Username, err)
		}
		return nil, err
	}

	contacts := keg.NewTofuContacts(sess, boot)
	sess.Contacts = contacts

	tracker := digest.New(conn, c.cfg.Digest, c.logger)
	if err := tracker.LoadCache(ctx, c.store); err != nil {
		c.logger.Warn("ignoring digest cache", "error", err)
	}
	tracker.ActivateKegDb(boot.ID())

	markers := transfer.NewMarkers(c.store)
	manager := transfer.NewManager(sess, boot, conn, markers, retrier, c.cfg.Transfer, c.logger)

	return &workspace{
		account:  account,
		conn:     conn,
		sess:     sess,
		boot:     boot,
		contacts: contacts,
		tracker:  tracker,
		retrier:  retrier,
		markers:  markers,
		manager:  manager,
	}, nil
}

// close saves the digest cache and stops the connection.
func (c *Cli) close(ctx context.Context, w *workspace) {
	if err := w.tracker.SaveCache(ctx, c.store); err != nil {
		c.logger.Warn("failed to save digest cache", "error", err)
	}
	w.conn.Close()
}

// withWorkspace opens the account, runs fn and closes the workspace.
func (c *Cli) withWorkspace(ctx context.Context, fn func(w *workspace) error) error {
	w, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer c.close(context.WithoutCancel(ctx), w)
	return fn(w)
}
