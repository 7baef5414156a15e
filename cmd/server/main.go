package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/kegkeeper/internal/config"
	"github.com/iudanet/kegkeeper/internal/server/handlers"
	"github.com/iudanet/kegkeeper/internal/server/router"
	"github.com/iudanet/kegkeeper/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		return err
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		return nil
	}

	jwtCfg := handlers.JWTConfig{
		Secret:         []byte(cfg.AuthSecret),
		AccessTokenTTL: cfg.TokenTTL,
	}

	// выдача токена без запуска сервера
	if cfg.IssueToken != "" {
		token, expiresAt, err := handlers.GenerateAccessToken(jwtCfg, cfg.IssueToken)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	if cfg.AuthSecret == config.DevAuthSecret {
		logger.Warn("AUTH_SECRET is not set, using development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	r := router.New(router.Config{
		Logger:  logger,
		Storage: store,
		JWT:     jwtCfg,
		Limits: handlers.Limits{
			QuotaBytes:    cfg.QuotaBytes,
			MaxChunkBytes: cfg.MaxChunkBytes,
		},
		Version:   Version,
		RateLimit: cfg.RateLimit,
	})
	defer r.Close()

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			"addr", cfg.Address,
			"version", Version,
			"database", cfg.DatabaseDSN,
			"rate_limit", cfg.RateLimit,
			"quota_bytes", cfg.QuotaBytes,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	select {
	case err := <-errC:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func printVersion() {
	fmt.Printf("KegKeeper Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
