package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaycrm/mailroom/internal/mail"
	"github.com/relaycrm/mailroom/internal/store"
)

// ReparseResult reports one deferred-body decode.
type ReparseResult struct {
	EmailID      string `json:"email_id"`
	Reparsed     bool   `json:"reparsed"`
	OriginalSize int    `json:"original_size"`
	ParsedSize   int    `json:"parsed_size"`
	BodyPlain    string `json:"body_plain"`
}

// ReparseEmailBody decodes the stored verbatim body of an oversized
// message and backfills the row. The id may be a protocol message
// identifier or a row id. Calling it on an already-parsed message is a
// no-op that returns the stored body unchanged.
func (c *Controller) ReparseEmailBody(ctx context.Context, id string) (*ReparseResult, error) {
	email, err := c.store.GetEmailByMessageID(ctx, mail.CleanMessageID(id))
	if errors.Is(err, store.ErrNotFound) {
		email, err = c.store.GetEmail(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if !email.NeedsParsing {
		return &ReparseResult{
			EmailID:      email.ID,
			Reparsed:     false,
			OriginalSize: len(email.BodyPlain),
			ParsedSize:   len(email.BodyPlain),
			BodyPlain:    email.BodyPlain,
		}, nil
	}

	decoded := mail.ExtractPlainText(email.BodyPlain)
	if err := c.store.UpdateEmailBody(ctx, email.ID, decoded); err != nil {
		return nil, fmt.Errorf("backfilling body for email %s: %w", email.ID, err)
	}

	c.log.Info().
		Str("email_id", email.ID).
		Int("original_size", len(email.BodyPlain)).
		Int("parsed_size", len(decoded)).
		Msg("deferred body decoded")

	return &ReparseResult{
		EmailID:      email.ID,
		Reparsed:     true,
		OriginalSize: len(email.BodyPlain),
		ParsedSize:   len(decoded),
		BodyPlain:    decoded,
	}, nil
}
