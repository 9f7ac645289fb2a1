package imapx

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError indicates a connection-level failure. Every dial
// strategy's failure is preserved so the combined error names them all.
// Retryable by the caller on the next scheduled invocation; not retried
// internally beyond the dual-transport fallback.
type TransportError struct {
	Addr     string
	Attempts []error
}

func (e *TransportError) Error() string {
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("connecting to %s: %s", e.Addr, strings.Join(msgs, "; "))
}

// IsTransportError reports whether err (or any error in its chain) is a
// TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AuthError indicates authentication failed. Fatal for that mailbox for
// the rest of the run; never retried within the run.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// FolderError indicates a folder is absent or cannot be selected. The
// folder is skipped; sibling folders continue.
type FolderError struct {
	Folder string
	Err    error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("selecting folder %s: %v", e.Folder, e.Err)
}

func (e *FolderError) Unwrap() error { return e.Err }

// IsFolderError reports whether err (or any error in its chain) is a
// FolderError.
func IsFolderError(err error) bool {
	var fe *FolderError
	return errors.As(err, &fe)
}
