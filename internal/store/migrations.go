package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mailboxes (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL DEFAULT '',
	imap_host       TEXT NOT NULL,
	imap_port       INTEGER NOT NULL DEFAULT 993,
	imap_username   TEXT NOT NULL DEFAULT '',
	is_active       INTEGER NOT NULL DEFAULT 1 CHECK(is_active IN (0, 1)),
	last_synced_at  DATETIME,
	last_synced_uid TEXT NOT NULL DEFAULT '{}',
	sync_status     TEXT NOT NULL DEFAULT '{}',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS contacts (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	status          TEXT NOT NULL DEFAULT 'active',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
	id                   TEXT PRIMARY KEY,
	thread_id            TEXT NOT NULL UNIQUE,
	subject              TEXT NOT NULL DEFAULT '',
	mailbox_id           TEXT NOT NULL REFERENCES mailboxes(id),
	organization_id      TEXT NOT NULL DEFAULT '',
	primary_contact_id   TEXT NOT NULL DEFAULT '',
	email_count          INTEGER NOT NULL DEFAULT 0,
	first_email_at       DATETIME,
	last_email_at        DATETIME,
	last_email_direction TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'active',
	requires_response    INTEGER NOT NULL DEFAULT 0 CHECK(requires_response IN (0, 1)),
	created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
	id               TEXT PRIMARY KEY,
	message_id       TEXT NOT NULL,
	thread_id        TEXT NOT NULL,
	conversation_id  TEXT NOT NULL REFERENCES conversations(id),
	in_reply_to      TEXT NOT NULL DEFAULT '',
	email_references TEXT NOT NULL DEFAULT '',
	subject          TEXT NOT NULL DEFAULT '',
	from_email       TEXT NOT NULL,
	from_name        TEXT NOT NULL DEFAULT '',
	to_emails        TEXT NOT NULL DEFAULT '[]',
	cc_emails        TEXT NOT NULL DEFAULT '[]',
	body_plain       TEXT NOT NULL DEFAULT '',
	direction        TEXT NOT NULL,
	is_seen          INTEGER NOT NULL DEFAULT 0,
	is_flagged       INTEGER NOT NULL DEFAULT 0,
	is_answered      INTEGER NOT NULL DEFAULT 0,
	is_draft         INTEGER NOT NULL DEFAULT 0,
	is_deleted       INTEGER NOT NULL DEFAULT 0,
	imap_folder      TEXT NOT NULL,
	imap_uid         INTEGER NOT NULL,
	mailbox_id       TEXT NOT NULL REFERENCES mailboxes(id),
	contact_id       TEXT NOT NULL REFERENCES contacts(id),
	organization_id  TEXT NOT NULL REFERENCES organizations(id),
	sent_at          DATETIME NOT NULL,
	received_at      DATETIME NOT NULL,
	needs_parsing    INTEGER NOT NULL DEFAULT 0 CHECK(needs_parsing IN (0, 1)),
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(mailbox_id, imap_folder, imap_uid)
);

CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
CREATE INDEX IF NOT EXISTS idx_emails_conversation_id ON emails(conversation_id);
CREATE INDEX IF NOT EXISTS idx_emails_thread_id ON emails(thread_id);
CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at);
CREATE INDEX IF NOT EXISTS idx_conversations_mailbox_id ON conversations(mailbox_id);
CREATE INDEX IF NOT EXISTS idx_contacts_organization_id ON contacts(organization_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_emails_needs_parsing ON emails(needs_parsing);
CREATE INDEX IF NOT EXISTS idx_conversations_requires_response
	ON conversations(requires_response);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
