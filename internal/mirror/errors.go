// Package mirror provides sentinel errors for mirror store operations.
// All errors can be checked using errors.Is() for programmatic handling.
package mirror

import (
	"errors"
	"fmt"
)

// Common sentinel errors that can be checked with errors.Is().
// These wrap underlying go-git errors while providing a stable API for consumers.

// ErrNotInitialized is returned when an operation requires an existing
// mirror store but none is present at the configured location.
// Recoverable by running init first.
var ErrNotInitialized = errors.New("mirror store not initialized")

// ErrNothingToSync is returned by push when no registry file differs from
// the mirror store's last committed state and the remote is already up to
// date. It is informational, not a failure.
var ErrNothingToSync = errors.New("nothing to push")

// ErrRemoteUnreachable is returned when a network operation against the
// mirror store's remote fails (missing repository, auth failure, transport
// error). The underlying error is preserved in the chain.
var ErrRemoteUnreachable = errors.New("remote unreachable")

// ErrNotFastForward is returned when a push or pull cannot be performed as
// a fast-forward update. Two machines pushed concurrently; the histories
// must be reconciled manually.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrInvalidOptions is returned when the Options for an operation are
// missing required fields or are otherwise malformed.
var ErrInvalidOptions = errors.New("invalid options")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
