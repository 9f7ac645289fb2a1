package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/mailroom/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedMailbox(t *testing.T, s *SQLiteStore) *model.Mailbox {
	t.Helper()
	m := &model.Mailbox{
		Email:    "sales@acme.com",
		Name:     "Sales",
		IMAPHost: "mail.acme.com",
		IMAPPort: 993,
		IsActive: true,
	}
	require.NoError(t, s.UpsertMailbox(context.Background(), m))
	return m
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening must not re-apply migrations.
	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestMailboxRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedMailbox(t, s)

	require.NotEmpty(t, m.ID)

	got, err := s.GetMailbox(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "sales@acme.com", got.Email)
	assert.True(t, got.IsActive)
	assert.Empty(t, got.LastSyncedUID)

	active, err := s.GetActiveMailboxes(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	// Deactivation removes it from the active set.
	m.IsActive = false
	require.NoError(t, s.UpsertMailbox(ctx, m))
	active, err = s.GetActiveMailboxes(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = s.GetMailbox(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatermarkPerFolder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedMailbox(t, s)

	uid, err := s.GetLastSyncedUID(ctx, m.ID, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), uid)

	require.NoError(t, s.SetLastSyncedUID(ctx, m.ID, "INBOX", 103, true, ""))
	require.NoError(t, s.SetLastSyncedUID(ctx, m.ID, "INBOX.Sent", 40, true, ""))

	uid, err = s.GetLastSyncedUID(ctx, m.ID, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(103), uid)

	uid, err = s.GetLastSyncedUID(ctx, m.ID, "INBOX.Sent")
	require.NoError(t, err)
	assert.Equal(t, uint32(40), uid)

	got, err := s.GetMailbox(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.SyncStatus.LastSyncSuccess)
	assert.NotNil(t, got.LastSyncedAt)
}

func TestSetSyncOutcomeFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedMailbox(t, s)

	require.NoError(t, s.SetSyncOutcome(ctx, m.ID, false, "authentication failed"))

	got, err := s.GetMailbox(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.SyncStatus.LastSyncSuccess)
	assert.Equal(t, "authentication failed", got.SyncStatus.LastSyncError)
}

func TestLegacyImportStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedMailbox(t, s)

	require.NoError(t, s.SetLegacyImportStatus(ctx, m.ID, &model.LegacyImportStatus{
		Folder:         "INBOX",
		LastUID:        500,
		TotalProcessed: 250,
		InProgress:     true,
	}))

	got, err := s.GetMailbox(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SyncStatus.LegacyImport)
	assert.Equal(t, uint32(500), got.SyncStatus.LegacyImport.LastUID)
	assert.True(t, got.SyncStatus.LegacyImport.InProgress)

	require.NoError(t, s.SetLegacyImportStatus(ctx, m.ID, nil))
	got, err = s.GetMailbox(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SyncStatus.LegacyImport)
}

func TestFindOrCreateOrganizationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.FindOrCreateOrganization(ctx, "other.com")
	require.NoError(t, err)
	assert.Equal(t, "Other Com", first.Name)

	// Same domain, any casing, converges on the same row.
	second, err := s.FindOrCreateOrganization(ctx, "OTHER.COM")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateContactIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org, err := s.FindOrCreateOrganization(ctx, "other.com")
	require.NoError(t, err)

	first, err := s.FindOrCreateContact(ctx, "alice@other.com", "Alice", "Smith", org.ID)
	require.NoError(t, err)

	// Re-resolving with different names keeps the original row intact.
	second, err := s.FindOrCreateContact(ctx, "alice@other.com", "Alicia", "S", org.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alice", second.FirstName)
}

func TestFindOrCreateConversationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedMailbox(t, s)

	seed := model.Conversation{
		ThreadID:         "thread-abc123",
		Subject:          "Project kickoff",
		MailboxID:        m.ID,
		RequiresResponse: true,
	}

	first, err := s.FindOrCreateConversation(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 0, first.EmailCount)
	assert.True(t, first.RequiresResponse)

	second, err := s.FindOrCreateConversation(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func seedEmail(t *testing.T, s *SQLiteStore, m *model.Mailbox, convID string, uid uint32, direction model.Direction, receivedAt time.Time) *model.Email {
	t.Helper()

	org, err := s.FindOrCreateOrganization(ctx(), "other.com")
	require.NoError(t, err)
	contact, err := s.FindOrCreateContact(ctx(), "alice@other.com", "Alice", "", org.ID)
	require.NoError(t, err)

	e := &model.Email{
		MessageID:      fmt.Sprintf("msg-%d@test.local", uid),
		ThreadID:       "thread-abc123",
		ConversationID: convID,
		FromEmail:      "alice@other.com",
		ToEmails:       []string{"sales@acme.com"},
		Direction:      direction,
		IMAPFolder:     "INBOX",
		IMAPUID:        uid,
		MailboxID:      m.ID,
		ContactID:      contact.ID,
		OrganizationID: org.ID,
		SentAt:         receivedAt,
		ReceivedAt:     receivedAt,
	}
	require.NoError(t, s.InsertEmail(ctx(), e))
	return e
}

func ctx() context.Context { return context.Background() }

func TestEmailLookupPaths(t *testing.T) {
	s := newTestStore(t)
	m := seedMailbox(t, s)

	conv, err := s.FindOrCreateConversation(ctx(), model.Conversation{
		ThreadID:  "thread-abc123",
		MailboxID: m.ID,
	})
	require.NoError(t, err)

	e := seedEmail(t, s, m, conv.ID, 12, model.DirectionIncoming, time.Now().UTC())

	// By message identifier.
	id, err := s.FindEmailID(ctx(), e.MessageID, m.ID, "INBOX", 0)
	require.NoError(t, err)
	assert.Equal(t, e.ID, id)

	// The identifier lookup ignores which mailbox is asking.
	id, err = s.FindEmailID(ctx(), e.MessageID, "another-mailbox", "Archive", 0)
	require.NoError(t, err)
	assert.Equal(t, e.ID, id)

	// By folder and uid when the identifier is unknown.
	id, err = s.FindEmailID(ctx(), "", m.ID, "INBOX", 12)
	require.NoError(t, err)
	assert.Equal(t, e.ID, id)

	_, err = s.FindEmailID(ctx(), "unknown@x.com", m.ID, "INBOX", 999)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetEmailByMessageID(ctx(), e.MessageID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sales@acme.com"}, got.ToEmails)
	assert.Empty(t, got.CcEmails)
}

func TestRecomputeConversationStats(t *testing.T) {
	s := newTestStore(t)
	m := seedMailbox(t, s)

	conv, err := s.FindOrCreateConversation(ctx(), model.Conversation{
		ThreadID:  "thread-abc123",
		MailboxID: m.ID,
	})
	require.NoError(t, err)

	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	t3 := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	seedEmail(t, s, m, conv.ID, 1, model.DirectionIncoming, t1)
	seedEmail(t, s, m, conv.ID, 2, model.DirectionOutgoing, t2)
	require.NoError(t, s.RecomputeConversationStats(ctx(), conv.ID))

	got, err := s.GetConversation(ctx(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EmailCount)
	assert.Equal(t, model.DirectionOutgoing, got.LastEmailDirection)
	assert.False(t, got.RequiresResponse)
	require.NotNil(t, got.FirstEmailAt)
	assert.True(t, got.FirstEmailAt.Equal(t1))

	// A newer incoming message flips the thread back to needing a reply.
	seedEmail(t, s, m, conv.ID, 3, model.DirectionIncoming, t3)
	require.NoError(t, s.RecomputeConversationStats(ctx(), conv.ID))

	got, err = s.GetConversation(ctx(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.EmailCount)
	assert.Equal(t, model.DirectionIncoming, got.LastEmailDirection)
	assert.True(t, got.RequiresResponse)
	require.NotNil(t, got.LastEmailAt)
	assert.True(t, got.LastEmailAt.Equal(t3))
}

func TestUpdateEmailBody(t *testing.T) {
	s := newTestStore(t)
	m := seedMailbox(t, s)

	conv, err := s.FindOrCreateConversation(ctx(), model.Conversation{
		ThreadID:  "thread-abc123",
		MailboxID: m.ID,
	})
	require.NoError(t, err)

	e := seedEmail(t, s, m, conv.ID, 7, model.DirectionIncoming, time.Now().UTC())

	require.NoError(t, s.UpdateEmailBody(ctx(), e.ID, "decoded body"))

	got, err := s.GetEmail(ctx(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "decoded body", got.BodyPlain)
	assert.False(t, got.NeedsParsing)

	assert.ErrorIs(t, s.UpdateEmailBody(ctx(), "missing", "x"), ErrNotFound)
}
