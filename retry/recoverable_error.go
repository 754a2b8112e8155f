package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// RecoverableError is implemented by errors that know whether a retry could
// succeed.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// recoverablePatterns are lowercase fragments of transient collaborator
// failures: network trouble and overloaded model providers.
var recoverablePatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"rate limit",
	"too many requests",
	"overloaded",
	"service unavailable",
	"internal server error",
	"bad gateway",
	"gateway timeout",
}

// IsRecoverable reports whether err is worth retrying.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var recoverable RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.IsRecoverable()
	}
	return isRecoverableByType(err)
}

func isRecoverableByType(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return isRecoverableByType(urlErr.Err)
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range recoverablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Recoverable marks an error as retryable.
type Recoverable struct {
	err error
}

func (e *Recoverable) Error() string       { return e.err.Error() }
func (e *Recoverable) IsRecoverable() bool { return true }
func (e *Recoverable) Unwrap() error       { return e.err }

func NewRecoverableError(err error) *Recoverable {
	return &Recoverable{err: err}
}

// NonRecoverableError marks an error that must not be retried, even when its
// message looks transient.
type NonRecoverableError struct {
	err error
}

func (e *NonRecoverableError) Error() string       { return e.err.Error() }
func (e *NonRecoverableError) IsRecoverable() bool { return false }
func (e *NonRecoverableError) Unwrap() error       { return e.err }

func NewNonRecoverableError(err error) *NonRecoverableError {
	return &NonRecoverableError{err: err}
}
