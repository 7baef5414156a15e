// Package cli implements the kegkeeper client commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/iudanet/kegkeeper/internal/client/iocli"
	"github.com/iudanet/kegkeeper/internal/client/storage"
	"github.com/iudanet/kegkeeper/internal/config"
)

// ErrUsage is returned for unknown commands and wrong arguments.
var ErrUsage = errors.New("invalid usage")

// Store is the local database the CLI works on.
type Store interface {
	storage.AccountStorage
	storage.Engine
}

type command struct {
	run   func(ctx context.Context, args []string) error
	usage string
	help  string
}

type Cli struct {
	io       iocli.IO
	store    Store
	cfg      *config.ClientConfig
	logger   *slog.Logger
	commands map[string]command
}

// New creates the CLI. A nil logger discards output.
func New(cfg *config.ClientConfig, term iocli.IO, store Store, logger *slog.Logger) *Cli {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(term, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	c := &Cli{
		io:     term,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
	c.commands = map[string]command{
		"login":    {run: c.runLogin, usage: "login [-token T] [-salt S] <username>", help: "Store the access token and open the account"},
		"logout":   {run: c.runLogout, usage: "logout", help: "Forget the account on this device"},
		"status":   {run: c.runStatus, usage: "status", help: "Show account, server and pending transfers"},
		"keys":     {run: c.runKeys, usage: "keys", help: "Print your public keys"},
		"trust":    {run: c.runTrust, usage: "trust <username> <signing-key> <encryption-key>", help: "Pin a contact's public keys"},
		"upload":   {run: c.runUpload, usage: "upload <path>", help: "Encrypt and upload a file"},
		"download": {run: c.runDownload, usage: "download <keg-id> [path]", help: "Download and decrypt a file"},
		"files":    {run: c.runFiles, usage: "files", help: "List uploaded files"},
		"rm":       {run: c.runRemove, usage: "rm <keg-id>", help: "Remove a file keg"},
		"resume":   {run: c.runResume, usage: "resume", help: "Continue interrupted transfers"},
		"settings": {run: c.runSettings, usage: "settings [key [value]]", help: "Show or change synced settings"},
		"digest":   {run: c.runDigest, usage: "digest", help: "Show which collections have updates"},
		"seen":     {run: c.runSeen, usage: "seen <keg-db-id> <type>", help: "Acknowledge updates of a type"},
	}
	return c
}

// Run executes args[0] with the remaining arguments.
func (c *Cli) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.PrintUsage()
		return ErrUsage
	}
	cmd, ok := c.commands[args[0]]
	if !ok {
		c.io.Printf("Unknown command: %s\n\n", args[0])
		c.PrintUsage()
		return ErrUsage
	}
	return cmd.run(ctx, args[1:])
}

// getPassphrase retrieves the passphrase with priority:
// 1. KEGKEEPER_PASSPHRASE environment variable
// 2. File from -passphrase-file / KEGKEEPER_PASSPHRASE_FILE
// 3. Interactive prompt (fallback)
func (c *Cli) getPassphrase() (string, error) {
	if c.cfg.Passphrase != "" {
		return c.cfg.Passphrase, nil
	}

	if c.cfg.PassphraseFile != "" {
		content, err := os.ReadFile(c.cfg.PassphraseFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		// Убираем trailing newline/whitespace
		passphrase := strings.TrimSpace(string(content))
		if passphrase == "" {
			return "", fmt.Errorf("passphrase file is empty")
		}
		return passphrase, nil
	}

	passphrase, err := c.io.ReadPassword("Passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if passphrase == "" {
		return "", fmt.Errorf("passphrase cannot be empty")
	}
	return passphrase, nil
}

// PrintUsage prints the command reference.
func (c *Cli) PrintUsage() {
	c.io.Println("KegKeeper Client")
	c.io.Println()
	c.io.Println("Usage:")
	c.io.Println("  kegkeeper [OPTIONS] COMMAND [ARGS]")
	c.io.Println()
	c.io.Println("Options:")
	c.io.Println("  -version                 Show version information")
	c.io.Println("  -server URL              Server URL (default: http://localhost:8080)")
	c.io.Println("  -db PATH                 Path to local database (default: kegkeeper.db)")
	c.io.Println("  -passphrase-file PATH    Path to file containing the passphrase")
	c.io.Println("  -log-level LEVEL         debug, info, warn, error")
	c.io.Println()
	c.io.Println("Passphrase priority (highest to lowest):")
	c.io.Println("  1. KEGKEEPER_PASSPHRASE environment variable")
	c.io.Println("  2. -passphrase-file")
	c.io.Println("  3. Interactive prompt")
	c.io.Println()
	c.io.Println("Commands:")

	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := c.commands[name]
		c.io.Printf("  %-50s %s\n", cmd.usage, cmd.help)
	}
}

func (c *Cli) usageError(name string) error {
	return fmt.Errorf("%w: kegkeeper %s", ErrUsage, c.commands[name].usage)
}
