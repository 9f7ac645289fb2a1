package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/relaycrm/mailroom/internal/mail"
	"github.com/relaycrm/mailroom/internal/model"
	"github.com/relaycrm/mailroom/internal/store"
)

// fallbackDomain groups senders whose address carries no usable domain.
const fallbackDomain = "unknown.local"

// Importer turns parsed messages into persisted rows, resolving the
// organization, contact, and conversation each message belongs to.
type Importer struct {
	store store.Store
	log   zerolog.Logger
}

func New(st store.Store, log zerolog.Logger) *Importer {
	return &Importer{store: st, log: log}
}

// Result reports one import outcome.
type Result struct {
	// EmailID is the persisted row id, whether created now or found.
	EmailID string

	// MessageID is the (possibly synthesized) message identifier.
	MessageID string

	// ThreadID the message landed in after reconciliation.
	ThreadID string

	// Created is false when the message was already present.
	Created bool
}

// Import persists one parsed message for a mailbox. The operation is
// idempotent: re-importing an existing message is a no-op that reports
// Created=false. Entities are resolved lazily and never mutated once
// created; only the conversation aggregate is recomputed afterwards.
func (im *Importer) Import(
	ctx context.Context,
	pm *mail.ParsedMessage,
	mailbox *model.Mailbox,
) (Result, error) {
	messageID := mail.CleanMessageID(pm.MessageID)
	if messageID == "" {
		messageID = mail.SyntheticMessageID(pm.UID, pm.Folder, pm.ReceivedAt)
	}

	if id, err := im.store.FindEmailID(ctx, messageID, mailbox.ID, pm.Folder, pm.UID); err == nil {
		return Result{EmailID: id, MessageID: messageID, Created: false}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("checking for existing email: %w", err)
	}

	threadID, conversationID, err := im.resolveThread(ctx, pm)
	if err != nil {
		return Result{}, err
	}

	org, err := im.resolveOrganization(ctx, pm.From.Email)
	if err != nil {
		return Result{}, err
	}

	firstName, lastName := mail.SplitFullName(pm.From.Name)
	contact, err := im.store.FindOrCreateContact(ctx, pm.From.Email, firstName, lastName, org.ID)
	if err != nil {
		return Result{}, fmt.Errorf("resolving contact %s: %w", pm.From.Email, err)
	}

	if conversationID == "" {
		conv, err := im.store.FindOrCreateConversation(ctx, model.Conversation{
			ThreadID:         threadID,
			Subject:          mail.NormalizeSubject(pm.Subject),
			MailboxID:        mailbox.ID,
			OrganizationID:   org.ID,
			PrimaryContactID: contact.ID,
			RequiresResponse: pm.Direction == model.DirectionIncoming,
		})
		if err != nil {
			return Result{}, fmt.Errorf("resolving conversation for thread %s: %w", threadID, err)
		}
		conversationID = conv.ID
	}

	email := &model.Email{
		MessageID:      messageID,
		ThreadID:       threadID,
		ConversationID: conversationID,
		InReplyTo:      mail.CleanMessageID(pm.InReplyTo),
		References:     pm.References,
		Subject:        pm.Subject,
		FromEmail:      pm.From.Email,
		FromName:       pm.From.Name,
		ToEmails:       mail.ToEmailList(pm.To),
		CcEmails:       mail.ToEmailList(pm.Cc),
		BodyPlain:      pm.BodyPlain,
		Direction:      pm.Direction,
		IsSeen:         pm.Flags.Seen,
		IsFlagged:      pm.Flags.Flagged,
		IsAnswered:     pm.Flags.Answered,
		IsDraft:        pm.Flags.Draft,
		IsDeleted:      pm.Flags.Deleted,
		IMAPFolder:     pm.Folder,
		IMAPUID:        pm.UID,
		MailboxID:      mailbox.ID,
		ContactID:      contact.ID,
		OrganizationID: org.ID,
		SentAt:         pm.SentAt,
		ReceivedAt:     pm.ReceivedAt,
		NeedsParsing:   pm.NeedsParsing,
	}
	if err := im.store.InsertEmail(ctx, email); err != nil {
		return Result{}, fmt.Errorf("inserting email %s: %w", messageID, err)
	}

	if err := im.store.RecomputeConversationStats(ctx, conversationID); err != nil {
		return Result{}, fmt.Errorf("recomputing conversation stats: %w", err)
	}

	im.log.Debug().
		Str("message_id", messageID).
		Str("thread_id", threadID).
		Str("folder", pm.Folder).
		Uint32("uid", pm.UID).
		Msg("email imported")

	return Result{EmailID: email.ID, MessageID: messageID, ThreadID: threadID, Created: true}, nil
}

// resolveThread computes the message's thread, preferring the stored
// parent's placement over the derived one. A reply whose parent is
// already imported joins the parent's thread and conversation even when
// the derived root identifier differs, which keeps partially referenced
// replies from splitting a thread.
func (im *Importer) resolveThread(
	ctx context.Context,
	pm *mail.ParsedMessage,
) (threadID, conversationID string, err error) {
	threadID = mail.AssignThreadID(pm)

	parentID := mail.CleanMessageID(pm.InReplyTo)
	if parentID == "" {
		return threadID, "", nil
	}

	parent, err := im.store.GetEmailByMessageID(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return threadID, "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("looking up parent %s: %w", parentID, err)
	}

	if parent.ThreadID != threadID {
		im.log.Debug().
			Str("derived", threadID).
			Str("parent", parent.ThreadID).
			Msg("joining parent thread")
	}
	return parent.ThreadID, parent.ConversationID, nil
}

// resolveOrganization resolves the sender's organization from the address
// domain, deriving a readable default name on first sight.
func (im *Importer) resolveOrganization(ctx context.Context, fromEmail string) (*model.Organization, error) {
	domain := mail.DomainOf(fromEmail)
	if domain == "" {
		domain = fallbackDomain
	}

	org, err := im.store.FindOrCreateOrganization(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("resolving organization %s: %w", domain, err)
	}
	return org, nil
}
