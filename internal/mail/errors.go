package mail

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError indicates a message whose sender address could not be
// extracted at all. The message is skipped, never stored.
type ParseError struct {
	UID    uint32
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (uid %d): %s", e.UID, e.Reason)
}

// IsParseError reports whether err (or any error in its chain) is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ValidationError rejects a message before import. Problems aggregates
// every failed check, including one entry per invalid recipient address.
type ValidationError struct {
	UID      uint32
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(
		"validation failed (uid %d): %s",
		e.UID, strings.Join(e.Problems, "; "),
	)
}

// IsValidationError reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
