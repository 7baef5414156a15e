package keg

import (
	"errors"
	"fmt"

	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/pkg/api"
)

var (
	// ErrNoKey is returned by DB.Key for unknown key ids.
	ErrNoKey = errors.New("collection key not found")

	// ErrEmptyKeg is returned when a keg has no payload and AllowEmpty is not set.
	ErrEmptyKeg = errs.NewServerError(api.CodeNotFound, "keg has no payload")

	// ErrNoID is returned by operations that need a created keg.
	ErrNoID = errs.NewServerError(api.CodeMalformedRequest, "keg has no id")

	// ErrQueueClosed is returned by TaskQueue.Push after Close. It is a
	// user cancellation in the errs taxonomy.
	ErrQueueClosed = fmt.Errorf("%w: task queue closed", errs.ErrUserCancel)
)
