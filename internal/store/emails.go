package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaycrm/mailroom/internal/model"
)

const emailColumns = `id, message_id, thread_id, conversation_id, in_reply_to,
	email_references, subject, from_email, from_name, to_emails, cc_emails,
	body_plain, direction, is_seen, is_flagged, is_answered, is_draft,
	is_deleted, imap_folder, imap_uid, mailbox_id, contact_id,
	organization_id, sent_at, received_at, needs_parsing, created_at, updated_at`

// FindEmailID looks up an email by its protocol message identifier, then
// by its (mailbox, folder, uid) composite key. The identifier lookup is
// global: the same physical message fetched from a second monitored
// mailbox must converge on the row already stored. The composite
// fallback stays mailbox-scoped because locally synthesized identifiers
// only mean anything within one mailbox's folders. Returns ErrNotFound
// when neither key matches.
func (s *SQLiteStore) FindEmailID(
	ctx context.Context,
	messageID, mailboxID, folder string,
	uid uint32,
) (string, error) {
	var id string

	if messageID != "" {
		err := s.db.GetContext(ctx, &id,
			"SELECT id FROM emails WHERE message_id = ? ORDER BY created_at ASC LIMIT 1",
			messageID,
		)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("looking up email by message id: %w", err)
		}
	}

	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM emails WHERE mailbox_id = ? AND imap_folder = ? AND imap_uid = ? LIMIT 1",
		mailboxID, folder, uid,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("looking up email by folder/uid: %w", err)
	}
	return id, nil
}

// GetEmail fetches one email by row id.
func (s *SQLiteStore) GetEmail(ctx context.Context, id string) (*model.Email, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+emailColumns+" FROM emails WHERE id = ?", id,
	)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// GetEmailByMessageID fetches one email by its protocol message
// identifier. When duplicates exist across folders the earliest insert
// wins, so thread lookups are stable.
func (s *SQLiteStore) GetEmailByMessageID(ctx context.Context, messageID string) (*model.Email, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+emailColumns+" FROM emails WHERE message_id = ? ORDER BY created_at ASC LIMIT 1",
		messageID,
	)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// InsertEmail persists a new email row. The caller is responsible for
// the preceding duplicate check; a conflicting (mailbox, folder, uid)
// key surfaces as a database error.
func (s *SQLiteStore) InsertEmail(ctx context.Context, e *model.Email) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	toJSON, err := json.Marshal(emptyIfNil(e.ToEmails))
	if err != nil {
		return fmt.Errorf("encoding recipients: %w", err)
	}
	ccJSON, err := json.Marshal(emptyIfNil(e.CcEmails))
	if err != nil {
		return fmt.Errorf("encoding cc recipients: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emails (
			id, message_id, thread_id, conversation_id, in_reply_to,
			email_references, subject, from_email, from_name, to_emails,
			cc_emails, body_plain, direction, is_seen, is_flagged,
			is_answered, is_draft, is_deleted, imap_folder, imap_uid,
			mailbox_id, contact_id, organization_id, sent_at, received_at,
			needs_parsing, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MessageID, e.ThreadID, e.ConversationID, e.InReplyTo,
		e.References, e.Subject, e.FromEmail, e.FromName, string(toJSON),
		string(ccJSON), e.BodyPlain, string(e.Direction), boolToInt(e.IsSeen),
		boolToInt(e.IsFlagged), boolToInt(e.IsAnswered), boolToInt(e.IsDraft),
		boolToInt(e.IsDeleted), e.IMAPFolder, e.IMAPUID, e.MailboxID,
		e.ContactID, e.OrganizationID, e.SentAt.UTC(), e.ReceivedAt.UTC(),
		boolToInt(e.NeedsParsing), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting email %s: %w", e.MessageID, err)
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// UpdateEmailBody backfills a decoded body and clears the deferred
// parsing flag.
func (s *SQLiteStore) UpdateEmailBody(ctx context.Context, id, bodyPlain string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE emails SET body_plain = ?, needs_parsing = 0, updated_at = ? WHERE id = ?",
		bodyPlain, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating email body %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEmail(r rowScanner) (*model.Email, error) {
	var (
		e              model.Email
		toJSON, ccJSON string
		direction      string
		seen, flagged  int
		answered       int
		draft, deleted int
		needsParsing   int
	)
	err := r.Scan(
		&e.ID, &e.MessageID, &e.ThreadID, &e.ConversationID, &e.InReplyTo,
		&e.References, &e.Subject, &e.FromEmail, &e.FromName, &toJSON,
		&ccJSON, &e.BodyPlain, &direction, &seen, &flagged, &answered,
		&draft, &deleted, &e.IMAPFolder, &e.IMAPUID, &e.MailboxID,
		&e.ContactID, &e.OrganizationID, &e.SentAt, &e.ReceivedAt,
		&needsParsing, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(toJSON), &e.ToEmails); err != nil {
		return nil, fmt.Errorf("decoding recipients for email %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(ccJSON), &e.CcEmails); err != nil {
		return nil, fmt.Errorf("decoding cc recipients for email %s: %w", e.ID, err)
	}

	e.Direction = model.Direction(direction)
	e.IsSeen = seen != 0
	e.IsFlagged = flagged != 0
	e.IsAnswered = answered != 0
	e.IsDraft = draft != 0
	e.IsDeleted = deleted != 0
	e.NeedsParsing = needsParsing != 0
	return &e, nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
