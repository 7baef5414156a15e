package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/kegkeeper/internal/client/storage"
	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/validation"
)

func (c *Cli) runLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.io)
	token := fs.String("token", "", "Access token issued by the server")
	saltB64 := fs.String("salt", "", "Account salt (base64) printed by the first login")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() > 1 {
		return c.usageError("login")
	}

	c.io.Println("=== Login ===")
	c.io.Println()

	username := fs.Arg(0)
	if username == "" {
		var err error
		if username, err = c.io.ReadInput("Username: "); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}
	if err := validation.ValidateUsername(username); err != nil {
		return fmt.Errorf("invalid username: %w", err)
	}

	if *token == "" {
		var err error
		if *token, err = c.io.ReadPassword("Access token: "); err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}
	expiresAt, err := tokenExpiry(*token)
	if err != nil {
		return err
	}

	salt, fresh, err := c.loginSalt(ctx, username, *saltB64)
	if err != nil {
		return err
	}

	passphrase, err := c.getPassphrase()
	if err != nil {
		return err
	}
	if fresh {
		// новый аккаунт: пароль задается здесь впервые
		if err := validation.ValidatePassword(passphrase); err != nil {
			return fmt.Errorf("invalid passphrase: %w", err)
		}
	}

	account := &storage.Account{
		Username:  username,
		ServerURL: c.cfg.ServerURL,
		Token:     *token,
		Salt:      salt,
		ExpiresAt: expiresAt,
	}

	c.io.Println("Opening account...")
	w, err := c.openAccount(ctx, account, passphrase)
	if err != nil {
		return err
	}
	defer c.close(context.WithoutCancel(ctx), w)

	if err := c.store.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("Username: %s\n", username)
	if expiresAt != 0 {
		c.io.Printf("Token expires: %s\n", time.Unix(expiresAt, 0).Format(time.RFC3339))
	}
	if fresh {
		c.io.Println()
		c.io.Println("Your account salt (needed to log in on another device):")
		c.io.Printf("  %s\n", base64.StdEncoding.EncodeToString(salt))
	}
	return nil
}

// loginSalt picks the salt: an explicit one, the one stored for the same
// username, or a new one. fresh reports a newly generated salt.
func (c *Cli) loginSalt(ctx context.Context, username, saltB64 string) (salt []byte, fresh bool, err error) {
	if saltB64 != "" {
		salt, err = base64.StdEncoding.DecodeString(saltB64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid salt: %w", err)
		}
		if len(salt) != crypto.SaltSize {
			return nil, false, fmt.Errorf("invalid salt: must be %d bytes, got %d", crypto.SaltSize, len(salt))
		}
		return salt, false, nil
	}

	account, err := c.store.GetAccount(ctx)
	switch {
	case err == nil && account.Username == username:
		return account.Salt, false, nil
	case err != nil && !errors.Is(err, storage.ErrAccountNotFound):
		return nil, false, fmt.Errorf("failed to get account: %w", err)
	}

	salt, err = crypto.GenerateSalt()
	if err != nil {
		return nil, false, err
	}
	return salt, true, nil
}

// tokenExpiry reads the exp claim without verifying the signature; only
// the server can verify it. 0 means no expiry.
func tokenExpiry(token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("access token cannot be empty")
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return 0, fmt.Errorf("invalid access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return 0, nil
	}
	return claims.ExpiresAt.Unix(), nil
}

func (c *Cli) runLogout(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return c.usageError("logout")
	}
	if err := c.store.DeleteAccount(ctx); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			c.io.Println("Not logged in.")
			return nil
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := c.store.Remove(ctx, storage.KeyDigest); err != nil {
		return fmt.Errorf("failed to clear digest cache: %w", err)
	}
	c.io.Println("✓ Logged out")
	return nil
}

func (c *Cli) runStatus(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return c.usageError("status")
	}
	c.io.Println("=== Account Status ===")
	c.io.Println()

	account, err := c.store.GetAccount(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			c.io.Println("Status: Not logged in")
			c.io.Println()
			c.io.Println("Run 'kegkeeper login' to set up this device.")
			return nil
		}
		return fmt.Errorf("failed to get account: %w", err)
	}

	c.io.Printf("Username: %s\n", account.Username)
	c.io.Printf("Server: %s\n", account.ServerURL)
	if account.ExpiresAt != 0 {
		c.io.Printf("Token expires: %s\n", time.Unix(account.ExpiresAt, 0).Format(time.RFC3339))
	}
	valid, err := c.store.IsAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("failed to check token: %w", err)
	}
	if !valid {
		c.io.Println("⚠️  Token has expired. Please login again.")
	}

	uploads, err := c.store.Keys(ctx, storage.UploadMarkerPrefix)
	if err != nil {
		return fmt.Errorf("failed to list upload markers: %w", err)
	}
	downloads, err := c.store.Keys(ctx, storage.DownloadMarkerPrefix)
	if err != nil {
		return fmt.Errorf("failed to list download markers: %w", err)
	}
	c.io.Println()
	if n := len(uploads) + len(downloads); n > 0 {
		c.io.Printf("⚠️  Pending transfers: %d upload(s), %d download(s)\n", len(uploads), len(downloads))
		c.io.Println("Run 'kegkeeper resume' to continue them.")
	} else {
		c.io.Println("✓ No pending transfers")
	}
	return nil
}
