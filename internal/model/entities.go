package model

import "time"

// Direction of a message relative to the mailbox it was fetched from.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Mailbox is a mail account under synchronization.
type Mailbox struct {
	// ID is the internal unique identifier for this mailbox.
	ID string `json:"id" db:"id"`

	// Email is the login address of the account.
	Email string `json:"email" db:"email"`

	// Name is the user-facing label for this mailbox.
	Name string `json:"name" db:"name"`

	// IMAPHost and IMAPPort locate the mail server.
	IMAPHost string `json:"imap_host" db:"imap_host"`
	IMAPPort int    `json:"imap_port" db:"imap_port"`

	// IMAPUsername overrides Email as the login name when set.
	IMAPUsername string `json:"imap_username" db:"imap_username"`

	// IsActive controls whether this mailbox participates in sync runs.
	IsActive bool `json:"is_active" db:"is_active"`

	// LastSyncedAt is the completion time of the most recent sync attempt.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty" db:"last_synced_at"`

	// LastSyncedUID maps folder name to the highest imported UID
	// (the per-folder watermark).
	LastSyncedUID map[string]uint32 `json:"last_synced_uid"`

	// SyncStatus holds the outcome of the last sync plus any in-progress
	// legacy import state.
	SyncStatus SyncStatus `json:"sync_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LoginUsername returns the IMAP login name for this mailbox.
func (m *Mailbox) LoginUsername() string {
	if m.IMAPUsername != "" {
		return m.IMAPUsername
	}
	return m.Email
}

// SyncStatus is the free-form sync-state blob stored on a mailbox row.
type SyncStatus struct {
	LastSyncSuccess bool                `json:"last_sync_success"`
	LastSyncAt      *time.Time          `json:"last_sync_at,omitempty"`
	LastSyncError   string              `json:"last_sync_error,omitempty"`
	LegacyImport    *LegacyImportStatus `json:"legacy_import,omitempty"`
}

// LegacyImportStatus tracks progress of a resumable historical import.
type LegacyImportStatus struct {
	Folder         string     `json:"folder"`
	LastUID        uint32     `json:"last_uid"`
	TotalProcessed int        `json:"total_processed"`
	InProgress     bool       `json:"in_progress"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Organization is resolved lazily from an email domain and never updated
// by the sync subsystem after creation.
type Organization struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Domain    string    `json:"domain" db:"domain"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contact is resolved lazily from a sender address.
type Contact struct {
	ID             string    `json:"id" db:"id"`
	Email          string    `json:"email" db:"email"`
	FirstName      string    `json:"first_name" db:"first_name"`
	LastName       string    `json:"last_name" db:"last_name"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Conversation is one logical thread. It is the only entity with a running
// aggregate that is recomputed after every import into the thread.
type Conversation struct {
	ID                 string     `json:"id" db:"id"`
	ThreadID           string     `json:"thread_id" db:"thread_id"`
	Subject            string     `json:"subject" db:"subject"`
	MailboxID          string     `json:"mailbox_id" db:"mailbox_id"`
	OrganizationID     string     `json:"organization_id" db:"organization_id"`
	PrimaryContactID   string     `json:"primary_contact_id" db:"primary_contact_id"`
	EmailCount         int        `json:"email_count" db:"email_count"`
	FirstEmailAt       *time.Time `json:"first_email_at,omitempty" db:"first_email_at"`
	LastEmailAt        *time.Time `json:"last_email_at,omitempty" db:"last_email_at"`
	LastEmailDirection Direction  `json:"last_email_direction" db:"last_email_direction"`
	Status             string     `json:"status" db:"status"`
	RequiresResponse   bool       `json:"requires_response" db:"requires_response"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Email is the persisted, deduplicated message record. Rows are immutable
// once inserted except for the deferred large-body backfill.
type Email struct {
	ID             string    `json:"id" db:"id"`
	MessageID      string    `json:"message_id" db:"message_id"`
	ThreadID       string    `json:"thread_id" db:"thread_id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	InReplyTo      string    `json:"in_reply_to" db:"in_reply_to"`
	References     string    `json:"references" db:"email_references"`
	Subject        string    `json:"subject" db:"subject"`
	FromEmail      string    `json:"from_email" db:"from_email"`
	FromName       string    `json:"from_name" db:"from_name"`
	ToEmails       []string  `json:"to_emails"`
	CcEmails       []string  `json:"cc_emails"`
	BodyPlain      string    `json:"body_plain" db:"body_plain"`
	Direction      Direction `json:"direction" db:"direction"`
	IsSeen         bool      `json:"is_seen" db:"is_seen"`
	IsFlagged      bool      `json:"is_flagged" db:"is_flagged"`
	IsAnswered     bool      `json:"is_answered" db:"is_answered"`
	IsDraft        bool      `json:"is_draft" db:"is_draft"`
	IsDeleted      bool      `json:"is_deleted" db:"is_deleted"`
	IMAPFolder     string    `json:"imap_folder" db:"imap_folder"`
	IMAPUID        uint32    `json:"imap_uid" db:"imap_uid"`
	MailboxID      string    `json:"mailbox_id" db:"mailbox_id"`
	ContactID      string    `json:"contact_id" db:"contact_id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	SentAt         time.Time `json:"sent_at" db:"sent_at"`
	ReceivedAt     time.Time `json:"received_at" db:"received_at"`
	NeedsParsing   bool      `json:"needs_parsing" db:"needs_parsing"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
