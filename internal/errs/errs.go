// Package errs defines the error kinds every public entry point of the client
// core returns. Callers match them with errors.Is / errors.As.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/iudanet/kegkeeper/pkg/api"
)

var (
	// ErrDecryption indicates a crypto precondition or authentication failure on decrypt.
	ErrDecryption = errors.New("decryption failed")

	// ErrEncryption indicates a crypto precondition failure on encrypt.
	ErrEncryption = errors.New("encryption failed")

	// ErrAntiTamper indicates that a keg's payload does not match its metadata.
	ErrAntiTamper = errors.New("keg anti-tamper check failed")

	// ErrConcurrency indicates an overlapping save/load on one keg.
	ErrConcurrency = errors.New("concurrent keg operation")

	// ErrUserCancel indicates an explicit cancellation.
	ErrUserCancel = errors.New("cancelled by user")

	// ErrDisconnected indicates a transient transport failure.
	ErrDisconnected = errors.New("disconnected")
)

// ServerError is a typed rejection from the server.
type ServerError struct {
	Message string
	Code    int
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error %d", e.Code)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, &ServerError{Code: x}) match on the code alone.
func (e *ServerError) Is(target error) bool {
	t, ok := target.(*ServerError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewServerError builds a ServerError.
func NewServerError(code int, message string) *ServerError {
	return &ServerError{Code: code, Message: message}
}

// ServerCode returns the server code carried by err, or 0.
func ServerCode(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsServerCode reports whether err is a ServerError with the given code.
func IsServerCode(err error, code int) bool {
	return ServerCode(err) == code
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDecryption),
		errors.Is(err, ErrEncryption),
		errors.Is(err, ErrAntiTamper),
		errors.Is(err, ErrConcurrency),
		errors.Is(err, ErrUserCancel),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrDisconnected), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	if code := ServerCode(err); code != 0 {
		return code == api.CodeServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Normalize maps any error onto the taxonomy above. Errors that already belong
// to it are returned unchanged so wrapping context is preserved.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrDecryption, ErrEncryption, ErrAntiTamper, ErrConcurrency, ErrUserCancel, ErrDisconnected} {
		if errors.Is(err, kind) {
			return err
		}
	}
	var se *ServerError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUserCancel, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return &ServerError{Code: api.CodeGeneric, Message: err.Error()}
}
