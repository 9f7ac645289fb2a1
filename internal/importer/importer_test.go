package importer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/mailroom/internal/mail"
	"github.com/relaycrm/mailroom/internal/model"
	"github.com/relaycrm/mailroom/internal/store"
)

func setup(t *testing.T) (*Importer, store.Store, *model.Mailbox) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := &model.Mailbox{
		Email:    "sales@acme.com",
		IMAPHost: "mail.acme.com",
		IMAPPort: 993,
		IsActive: true,
	}
	require.NoError(t, st.UpsertMailbox(context.Background(), m))

	return New(st, zerolog.Nop()), st, m
}

func message(uid uint32, messageID, inReplyTo, references string) *mail.ParsedMessage {
	return &mail.ParsedMessage{
		MessageID:  messageID,
		InReplyTo:  inReplyTo,
		References: references,
		Subject:    "Project kickoff",
		From:       mail.Address{Email: "alice@other.com", Name: "Alice Smith"},
		To:         []mail.Address{{Email: "sales@acme.com"}},
		Direction:  model.DirectionIncoming,
		BodyPlain:  "hello",
		Folder:     "INBOX",
		UID:        uid,
		SentAt:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Minute),
		ReceivedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Minute),
	}
}

func TestImportCreatesFullEntityGraph(t *testing.T) {
	im, st, m := setup(t)
	ctx := context.Background()

	res, err := im.Import(ctx, message(1, "<msg1@other.com>", "", ""), m)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "msg1@other.com", res.MessageID)

	email, err := st.GetEmail(ctx, res.EmailID)
	require.NoError(t, err)
	assert.Equal(t, res.ThreadID, email.ThreadID)
	assert.NotEmpty(t, email.ContactID)
	assert.NotEmpty(t, email.OrganizationID)
	assert.NotEmpty(t, email.ConversationID)

	// Sender resolution populated the graph.
	contact, err := st.FindOrCreateContact(ctx, "alice@other.com", "", "", email.OrganizationID)
	require.NoError(t, err)
	assert.Equal(t, email.ContactID, contact.ID)
	assert.Equal(t, "Alice", contact.FirstName)
	assert.Equal(t, "Smith", contact.LastName)

	org, err := st.FindOrCreateOrganization(ctx, "other.com")
	require.NoError(t, err)
	assert.Equal(t, email.OrganizationID, org.ID)
}

func TestImportIsIdempotent(t *testing.T) {
	im, _, m := setup(t)
	ctx := context.Background()

	first, err := im.Import(ctx, message(1, "<msg1@other.com>", "", ""), m)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := im.Import(ctx, message(1, "<msg1@other.com>", "", ""), m)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.EmailID, second.EmailID)
}

func TestImportConvergesAcrossMailboxes(t *testing.T) {
	im, st, m := setup(t)
	ctx := context.Background()

	other := &model.Mailbox{
		Email:    "support@acme.com",
		IMAPHost: "mail.acme.com",
		IMAPPort: 993,
		IsActive: true,
	}
	require.NoError(t, st.UpsertMailbox(ctx, other))

	// The same physical message lands in two monitored mailboxes.
	pm := message(4, "<shared@other.com>", "", "")
	pm.To = []mail.Address{{Email: "sales@acme.com"}, {Email: "support@acme.com"}}

	first, err := im.Import(ctx, pm, m)
	require.NoError(t, err)
	require.True(t, first.Created)

	refetched := message(17, "<shared@other.com>", "", "")
	refetched.To = pm.To
	second, err := im.Import(ctx, refetched, other)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.EmailID, second.EmailID)

	email, err := st.GetEmail(ctx, first.EmailID)
	require.NoError(t, err)
	conv, err := st.(*store.SQLiteStore).GetConversation(ctx, email.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.EmailCount)
}

func TestImportDeduplicatesByFolderUID(t *testing.T) {
	im, _, m := setup(t)
	ctx := context.Background()

	// No message identifier at all: the synthetic identifier plus the
	// folder/uid key still deduplicate the refetch.
	pm := message(9, "", "", "")
	first, err := im.Import(ctx, pm, m)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := im.Import(ctx, message(9, "", "", ""), m)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.EmailID, second.EmailID)
}

func TestImportThreadsRepliesTogether(t *testing.T) {
	im, st, m := setup(t)
	ctx := context.Background()

	root, err := im.Import(ctx, message(1, "<root@other.com>", "", ""), m)
	require.NoError(t, err)

	reply, err := im.Import(ctx, message(
		2, "<reply@other.com>", "<root@other.com>", "<root@other.com>",
	), m)
	require.NoError(t, err)
	assert.Equal(t, root.ThreadID, reply.ThreadID)

	rootEmail, err := st.GetEmail(ctx, root.EmailID)
	require.NoError(t, err)
	replyEmail, err := st.GetEmail(ctx, reply.EmailID)
	require.NoError(t, err)
	assert.Equal(t, rootEmail.ConversationID, replyEmail.ConversationID)
}

func TestImportJoinsParentThreadOnDivergence(t *testing.T) {
	im, st, m := setup(t)
	ctx := context.Background()

	// The stored parent derives its thread from a reference chain the
	// late reply never saw.
	parent, err := im.Import(ctx, message(
		1, "<mid@other.com>", "<origin@other.com>", "<origin@other.com>",
	), m)
	require.NoError(t, err)

	// The reply only knows its direct parent, so its derived thread
	// would differ. The stored parent's placement wins.
	reply, err := im.Import(ctx, message(2, "<late@other.com>", "<mid@other.com>", ""), m)
	require.NoError(t, err)
	assert.Equal(t, parent.ThreadID, reply.ThreadID)
	assert.NotEqual(t, mail.ThreadIDFromRoot("mid@other.com"), reply.ThreadID)

	parentEmail, err := st.GetEmail(ctx, parent.EmailID)
	require.NoError(t, err)
	replyEmail, err := st.GetEmail(ctx, reply.EmailID)
	require.NoError(t, err)
	assert.Equal(t, parentEmail.ConversationID, replyEmail.ConversationID)
}

func TestImportUpdatesConversationAggregate(t *testing.T) {
	im, st, m := setup(t)
	ctx := context.Background()

	res, err := im.Import(ctx, message(1, "<root@other.com>", "", ""), m)
	require.NoError(t, err)

	outgoing := message(2, "<reply@other.com>", "<root@other.com>", "<root@other.com>")
	outgoing.Direction = model.DirectionOutgoing
	outgoing.From = mail.Address{Email: "sales@acme.com"}
	_, err = im.Import(ctx, outgoing, m)
	require.NoError(t, err)

	email, err := st.GetEmail(ctx, res.EmailID)
	require.NoError(t, err)
	conv, err := st.(*store.SQLiteStore).GetConversation(ctx, email.ConversationID)
	require.NoError(t, err)

	assert.Equal(t, 2, conv.EmailCount)
	assert.Equal(t, model.DirectionOutgoing, conv.LastEmailDirection)
	assert.False(t, conv.RequiresResponse)
}

func TestImportSenderWithoutDomain(t *testing.T) {
	im, st, m := setup(t)
	ctx := context.Background()

	pm := message(1, "<odd@other.com>", "", "")
	pm.From = mail.Address{Email: "postmaster"}

	res, err := im.Import(ctx, pm, m)
	require.NoError(t, err)

	email, err := st.GetEmail(ctx, res.EmailID)
	require.NoError(t, err)

	org, err := st.FindOrCreateOrganization(ctx, "unknown.local")
	require.NoError(t, err)
	assert.Equal(t, org.ID, email.OrganizationID)
}
