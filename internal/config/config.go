// Package config loads client and server settings from the environment,
// an optional .env file and command-line flags. Flags win over the
// environment; their defaults are the environment values.
package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/iudanet/kegkeeper/internal/digest"
	"github.com/iudanet/kegkeeper/internal/retry"
	"github.com/iudanet/kegkeeper/internal/transfer"
)

// DevAuthSecret подставляется, если AUTH_SECRET не задан. Только для разработки.
const DevAuthSecret = "dev-secret-key"

// ClientConfig - настройки CLI клиента
type ClientConfig struct {
	ServerURL string `env:"KEGKEEPER_SERVER" envDefault:"http://localhost:8080"`
	DBPath    string `env:"KEGKEEPER_DB" envDefault:"kegkeeper.db"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	// Passphrase из окружения имеет приоритет над файлом и вводом с терминала
	Passphrase     string `env:"KEGKEEPER_PASSPHRASE"`
	PassphraseFile string `env:"KEGKEEPER_PASSPHRASE_FILE"`

	Retry    retry.Config
	Transfer transfer.Config
	Digest   digest.Config

	// Args - позиционные аргументы после флагов (команда и ее параметры)
	Args        []string `env:"-"`
	ShowVersion bool     `env:"-"`
}

// ServerConfig - настройки эталонного сервера
type ServerConfig struct {
	Address     string        `env:"ADDRESS" envDefault:":8080"`
	DatabaseDSN string        `env:"DATABASE_URI" envDefault:"kegkeeper-server.db"`
	AuthSecret  string        `env:"AUTH_SECRET"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	IssueToken  string        `env:"-"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	// QuotaBytes - лимит суммарного размера файлов одного пользователя, 0 = без лимита
	QuotaBytes    int64 `env:"QUOTA_BYTES" envDefault:"1073741824"`
	MaxChunkBytes int64 `env:"MAX_CHUNK_BYTES" envDefault:"1048608"`
	// RateLimit - запросов в секунду с одного адреса, 0 = без лимита
	RateLimit   int  `env:"RATE_LIMIT" envDefault:"100"`
	ShowVersion bool `env:"-"`
}

// LoadClient reads the client configuration. args are the command-line
// arguments without the program name.
func LoadClient(args []string) (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	fs := flag.NewFlagSet("kegkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to local database")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.PassphraseFile, "passphrase-file", cfg.PassphraseFile, "Path to file containing the passphrase")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	cfg.Args = fs.Args()

	cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	return cfg, nil
}

// LoadServer reads the server configuration.
func LoadServer(args []string) (*ServerConfig, error) {
	_ = godotenv.Load()

	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	fs := flag.NewFlagSet("kegkeeper-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Address, "a", cfg.Address, "Listen address")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite database path")
	fs.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "JWT signing secret")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "Lifetime of issued tokens")
	fs.StringVar(&cfg.IssueToken, "issue-token", "", "Print a token for the given username and exit")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Requests per second per client address")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	if cfg.AuthSecret == "" {
		cfg.AuthSecret = DevAuthSecret
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive, got %s", cfg.TokenTTL)
	}
	return cfg, nil
}

// ParseLogLevel maps a level name to slog; unknown names mean info.
func ParseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
