package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaycrm/mailroom/internal/model"
)

// FindOrCreateOrganization returns the organization for a domain, creating
// it on first sight. The insert-then-select pattern makes concurrent
// callers converge on the same row.
func (s *SQLiteStore) FindOrCreateOrganization(ctx context.Context, domain string) (*model.Organization, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("organization domain is empty")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, domain, status, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?)
		ON CONFLICT(domain) DO NOTHING`,
		uuid.NewString(), organizationNameFromDomain(domain), domain, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting organization %s: %w", domain, err)
	}

	var org model.Organization
	err = s.db.GetContext(ctx, &org,
		"SELECT id, name, domain, status, created_at, updated_at FROM organizations WHERE domain = ?",
		domain,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting organization %s: %w", domain, err)
	}
	return &org, nil
}

// organizationNameFromDomain derives a readable default name from a
// domain: "acme-corp.example.com" becomes "Acme-corp Example Com".
func organizationNameFromDomain(domain string) string {
	parts := strings.Split(domain, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// FindOrCreateContact returns the contact for an address, creating it on
// first sight. Existing contacts keep their original names and
// organization.
func (s *SQLiteStore) FindOrCreateContact(
	ctx context.Context,
	email, firstName, lastName, organizationID string,
) (*model.Contact, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("contact email is empty")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, email, first_name, last_name, organization_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		uuid.NewString(), email, firstName, lastName, organizationID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting contact %s: %w", email, err)
	}

	var c model.Contact
	err = s.db.GetContext(ctx, &c, `
		SELECT id, email, first_name, last_name, organization_id, status, created_at, updated_at
		FROM contacts WHERE email = ?`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting contact %s: %w", email, err)
	}
	return &c, nil
}

const conversationColumns = `id, thread_id, subject, mailbox_id, organization_id,
	primary_contact_id, email_count, first_email_at, last_email_at,
	last_email_direction, status, requires_response, created_at, updated_at`

// FindOrCreateConversation returns the conversation for the seed's thread
// id, creating it with the seed's fields when absent. The aggregate
// columns are owned by RecomputeConversationStats after creation.
func (s *SQLiteStore) FindOrCreateConversation(
	ctx context.Context,
	seed model.Conversation,
) (*model.Conversation, error) {
	if seed.ThreadID == "" {
		return nil, fmt.Errorf("conversation thread id is empty")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, thread_id, subject, mailbox_id, organization_id, primary_contact_id,
			email_count, first_email_at, last_email_at, last_email_direction,
			status, requires_response, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, NULL, NULL, '', 'active', ?, ?, ?)
		ON CONFLICT(thread_id) DO NOTHING`,
		uuid.NewString(), seed.ThreadID, seed.Subject, seed.MailboxID,
		seed.OrganizationID, seed.PrimaryContactID,
		boolToInt(seed.RequiresResponse), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation %s: %w", seed.ThreadID, err)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE thread_id = ?",
		seed.ThreadID,
	)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("selecting conversation %s: %w", seed.ThreadID, err)
	}
	return conv, nil
}

// RecomputeConversationStats re-derives a conversation's aggregate from
// the full set of its messages: count, first and last timestamps, last
// direction, and whether the thread is waiting on a reply.
func (s *SQLiteStore) RecomputeConversationStats(ctx context.Context, conversationID string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT received_at, direction FROM emails
		WHERE conversation_id = ?
		ORDER BY received_at ASC, imap_uid ASC`,
		conversationID,
	)
	if err != nil {
		return fmt.Errorf("reading conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var (
		count         int
		first, last   time.Time
		lastDirection string
	)
	for rows.Next() {
		var receivedAt time.Time
		var direction string
		if err := rows.Scan(&receivedAt, &direction); err != nil {
			return fmt.Errorf("scanning conversation %s: %w", conversationID, err)
		}
		if count == 0 {
			first = receivedAt
		}
		last = receivedAt
		lastDirection = direction
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading conversation %s: %w", conversationID, err)
	}

	var firstAt, lastAt any
	if count > 0 {
		firstAt, lastAt = first, last
	}
	requiresResponse := lastDirection == string(model.DirectionIncoming)

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations
		SET email_count = ?, first_email_at = ?, last_email_at = ?,
			last_email_direction = ?, requires_response = ?, updated_at = ?
		WHERE id = ?`,
		count, firstAt, lastAt,
		lastDirection, boolToInt(requiresResponse), time.Now().UTC(), conversationID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation %s: %w", conversationID, err)
	}
	return nil
}

// GetConversation fetches one conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id,
	)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

func scanConversation(r rowScanner) (*model.Conversation, error) {
	var (
		conv             model.Conversation
		first, last      sql.NullTime
		direction        string
		requiresResponse int
	)
	err := r.Scan(
		&conv.ID, &conv.ThreadID, &conv.Subject, &conv.MailboxID,
		&conv.OrganizationID, &conv.PrimaryContactID, &conv.EmailCount,
		&first, &last, &direction, &conv.Status, &requiresResponse,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.FirstEmailAt = timePtr(first.Time, first.Valid)
	conv.LastEmailAt = timePtr(last.Time, last.Valid)
	conv.LastEmailDirection = model.Direction(direction)
	conv.RequiresResponse = requiresResponse != 0
	return &conv, nil
}
