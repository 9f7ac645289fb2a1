package store

import (
	"context"
	"errors"

	"github.com/relaycrm/mailroom/internal/model"
)

// ErrNotFound distinguishes an absent row from a storage failure.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for mailboxes and the imported
// email graph. Find-or-create operations are atomic per unique key and
// idempotent; the conversation aggregate is the only entity mutated after
// creation.
type Store interface {
	// === Mailboxes ===

	GetActiveMailboxes(ctx context.Context) ([]model.Mailbox, error)
	GetMailbox(ctx context.Context, id string) (*model.Mailbox, error)
	UpsertMailbox(ctx context.Context, m *model.Mailbox) error

	// GetLastSyncedUID returns the watermark for a mailbox/folder pair,
	// zero when the folder has never been synced.
	GetLastSyncedUID(ctx context.Context, mailboxID, folder string) (uint32, error)

	// SetLastSyncedUID advances the watermark for one folder key and
	// records the sync outcome. The write is a single-row update.
	SetLastSyncedUID(
		ctx context.Context,
		mailboxID, folder string,
		uid uint32,
		success bool,
		syncErr string,
	) error

	// SetLegacyImportStatus records resumable bulk-import progress on
	// the mailbox's sync-status blob.
	SetLegacyImportStatus(
		ctx context.Context,
		mailboxID string,
		st *model.LegacyImportStatus,
	) error

	// SetSyncOutcome records the result of a sync attempt without
	// touching any folder watermark.
	SetSyncOutcome(ctx context.Context, mailboxID string, success bool, syncErr string) error

	// === Entity resolution ===

	FindOrCreateOrganization(ctx context.Context, domain string) (*model.Organization, error)
	FindOrCreateContact(
		ctx context.Context,
		email, firstName, lastName, organizationID string,
	) (*model.Contact, error)

	// FindOrCreateConversation returns the conversation for the seed's
	// thread id, creating it with the seed's aggregate fields if absent.
	FindOrCreateConversation(ctx context.Context, seed model.Conversation) (*model.Conversation, error)

	// === Emails ===

	// FindEmailID looks up an email by protocol message identifier,
	// falling back to the (mailbox, folder, uid) composite key.
	// Returns ErrNotFound when neither matches.
	FindEmailID(
		ctx context.Context,
		messageID, mailboxID, folder string,
		uid uint32,
	) (string, error)

	GetEmail(ctx context.Context, id string) (*model.Email, error)
	GetEmailByMessageID(ctx context.Context, messageID string) (*model.Email, error)
	InsertEmail(ctx context.Context, e *model.Email) error

	// RecomputeConversationStats re-derives the conversation aggregate
	// from the full set of messages in the conversation.
	RecomputeConversationStats(ctx context.Context, conversationID string) error

	// UpdateEmailBody backfills a decoded body and clears needs_parsing.
	UpdateEmailBody(ctx context.Context, id, bodyPlain string) error

	Close() error
}
