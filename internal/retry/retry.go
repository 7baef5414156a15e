// Package retry runs actions until they succeed, backing off between attempts
// and waiting for the connection to be authenticated before each retry.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/iudanet/kegkeeper/internal/errs"
)

// Значения по умолчанию
const (
	DefaultBaseInterval = 250 * time.Millisecond
	DefaultStepInterval = time.Second
	DefaultMaxInterval  = 10 * time.Second
	DefaultMaxAttempts  = 20
)

// Config controls the backoff. The delay before attempt n+1 is
// min(MaxInterval, n*StepInterval) + BaseInterval.
type Config struct {
	BaseInterval time.Duration `env:"RETRY_BASE_INTERVAL" envDefault:"250ms"`
	StepInterval time.Duration `env:"RETRY_STEP_INTERVAL" envDefault:"1s"`
	MaxInterval  time.Duration `env:"RETRY_MAX_INTERVAL" envDefault:"10s"`
	MaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"20"`
}

// DefaultConfig returns the stock intervals.
func DefaultConfig() Config {
	return Config{
		BaseInterval: DefaultBaseInterval,
		StepInterval: DefaultStepInterval,
		MaxInterval:  DefaultMaxInterval,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	return c
}

// Delay returns the wait after the given (1-based) failed attempt.
func (c Config) Delay(attempt int) time.Duration {
	d := time.Duration(attempt) * c.StepInterval
	if d > c.MaxInterval {
		d = c.MaxInterval
	}
	return d + c.BaseInterval
}

func (c Config) backoff() goretry.Backoff {
	var attempt int
	next := goretry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return c.Delay(attempt), false
	})
	return goretry.WithMaxRetries(uint64(c.MaxAttempts-1), next)
}

// Authenticator gates retries on the connection state.
type Authenticator interface {
	WaitAuthenticated(ctx context.Context) error
}

// ExhaustedError is returned once every attempt failed with a retryable error.
type ExhaustedError struct {
	Last     error
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Engine retries actions. Concurrent calls sharing an id share one execution.
type Engine struct {
	auth   Authenticator
	logger *slog.Logger
	group  singleflight.Group
	cfg    Config
}

// New creates an Engine. auth may be nil when there is nothing to wait for.
func New(cfg Config, auth Authenticator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		auth:   auth,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// Do runs action until it succeeds, fails with a terminal error, or runs out
// of attempts. The returned error is always normalized (see errs.Normalize).
//
// With a non-empty id, a caller arriving while an action with the same id is
// in flight waits for that execution instead of starting another one. The
// shared execution runs under the first caller's ctx.
func (e *Engine) Do(ctx context.Context, id string, action func(ctx context.Context) error) error {
	_, err := e.run(ctx, id, func(ctx context.Context) (any, error) {
		return nil, action(ctx)
	})
	return err
}

// DoValue is Do for actions that produce a value.
func DoValue[T any](ctx context.Context, e *Engine, id string, action func(ctx context.Context) (T, error)) (T, error) {
	v, err := e.run(ctx, id, func(ctx context.Context) (any, error) {
		return action(ctx)
	})
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return v.(T), nil
}

func (e *Engine) run(ctx context.Context, id string, action func(ctx context.Context) (any, error)) (any, error) {
	if id == "" {
		return e.loop(ctx, id, action)
	}

	ch := e.group.DoChan(id, func() (any, error) {
		return e.loop(ctx, id, action)
	})
	select {
	case <-ctx.Done():
		return nil, errs.Normalize(ctx.Err())
	case res := <-ch:
		if res.Shared {
			e.logger.Debug("shared in-flight retry result", "id", id)
		}
		return res.Val, res.Err
	}
}

func (e *Engine) loop(ctx context.Context, id string, action func(ctx context.Context) (any, error)) (any, error) {
	var (
		value    any
		last     error
		attempts int
		terminal bool
	)

	err := goretry.Do(ctx, e.cfg.backoff(), func(ctx context.Context) error {
		// перед повтором ждём восстановления соединения
		if attempts > 0 && e.auth != nil {
			if err := e.auth.WaitAuthenticated(ctx); err != nil {
				terminal = true
				return err
			}
		}

		attempts++
		v, err := action(ctx)
		if err == nil {
			value = v
			return nil
		}
		last = err

		if !errs.Retryable(err) {
			terminal = true
			return err
		}
		e.logger.Debug("retryable failure", "id", id, "attempt", attempts, "error", err)
		return goretry.RetryableError(err)
	})

	switch {
	case err == nil:
		return value, nil
	case terminal:
		return nil, errs.Normalize(err)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil, errs.Normalize(err)
	}

	e.logger.Warn("retry attempts exhausted", "id", id, "attempts", attempts, "error", last)
	return nil, &ExhaustedError{Attempts: attempts, Last: errs.Normalize(last)}
}
