package mail

import (
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/relaycrm/mailroom/internal/model"
)

// ParserOptions carries the policy knobs the parser needs.
type ParserOptions struct {
	// SentFolders are folder names whose messages are outgoing.
	SentFolders []string

	// Now supplies the fallback receipt timestamp for messages with an
	// unparseable Date header. Defaults to time.Now.
	Now func() time.Time
}

// Parser converts raw fetched messages into structured records.
type Parser struct {
	opts ParserOptions
}

// NewParser creates a parser with the given options.
func NewParser(opts ParserOptions) *Parser {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.SentFolders) == 0 {
		opts.SentFolders = []string{
			"Sent", "Sent Items", "Sent Mail", "Outbox", "Sent Messages",
		}
	}
	return &Parser{opts: opts}
}

// Parse converts a RawMessage into a ParsedMessage. It fails with a
// ParseError only when the sender address cannot be extracted at all.
func (p *Parser) Parse(
	raw RawMessage,
	mailboxEmail, folder string,
) (*ParsedMessage, error) {
	headers := ParseHeaderBlock(raw.Header)

	from, ok := ParseAddress(headers["from"])
	if !ok {
		return nil, &ParseError{
			UID:    raw.UID,
			Reason: fmt.Sprintf("no sender address in %q", headers["from"]),
		}
	}

	receivedAt := p.parseDate(headers["date"])

	m := &ParsedMessage{
		MessageID:  CleanMessageID(headers["message-id"]),
		InReplyTo:  headers["in-reply-to"],
		References: headers["references"],
		Subject:    headers["subject"],
		From:       from,
		To:         ParseAddressList(headers["to"]),
		Cc:         ParseAddressList(headers["cc"]),
		Flags:      parseFlags(raw.Flags),
		Folder:     folder,
		UID:        raw.UID,
		SentAt:     receivedAt,
		ReceivedAt: receivedAt,
	}

	m.Direction = p.direction(folder, from.Email, mailboxEmail)

	if raw.Decoded {
		m.BodyPlain = DecodeQuotedPrintable(string(raw.Body))
	} else {
		// Oversized body: store verbatim, decode later on demand.
		m.BodyPlain = string(raw.Body)
		m.NeedsParsing = true
	}

	return m, nil
}

// Validate runs the pre-import checks. Recipient problems are aggregated
// per address rather than failing on the first.
func (p *Parser) Validate(m *ParsedMessage) error {
	var problems []string

	if m.From.Email == "" {
		problems = append(problems, "missing sender address")
	} else if !IsValidEmail(m.From.Email) {
		problems = append(problems, fmt.Sprintf("invalid sender address %q", m.From.Email))
	}

	if len(m.To) == 0 {
		problems = append(problems, "missing recipient addresses")
	}
	for _, a := range m.To {
		if !IsValidEmail(a.Email) {
			problems = append(problems, fmt.Sprintf("invalid recipient address %q", a.Email))
		}
	}

	if m.UID == 0 {
		problems = append(problems, "missing sequence identifier")
	}
	if m.Folder == "" {
		problems = append(problems, "missing folder")
	}
	if m.ReceivedAt.IsZero() {
		problems = append(problems, "missing receipt timestamp")
	}

	if len(problems) > 0 {
		return &ValidationError{UID: m.UID, Problems: problems}
	}
	return nil
}

// direction is outgoing iff the folder matches a sent-folder name or the
// sender is the mailbox itself.
func (p *Parser) direction(folder, fromEmail, mailboxEmail string) model.Direction {
	base := folder
	// Namespaced folders like "INBOX.Sent" compare by their last segment.
	if i := strings.LastIndexAny(folder, "./"); i >= 0 {
		base = folder[i+1:]
	}
	for _, sent := range p.opts.SentFolders {
		if strings.EqualFold(base, sent) || strings.EqualFold(folder, sent) {
			return model.DirectionOutgoing
		}
	}
	if strings.EqualFold(fromEmail, mailboxEmail) {
		return model.DirectionOutgoing
	}
	return model.DirectionIncoming
}

func (p *Parser) parseDate(value string) time.Time {
	if value != "" {
		if t, err := netmail.ParseDate(value); err == nil {
			return t
		}
	}
	return p.opts.Now()
}

func parseFlags(flags []string) Flags {
	var f Flags
	for _, flag := range flags {
		switch strings.ToLower(strings.TrimPrefix(flag, "\\")) {
		case "seen":
			f.Seen = true
		case "flagged":
			f.Flagged = true
		case "answered":
			f.Answered = true
		case "draft":
			f.Draft = true
		case "deleted":
			f.Deleted = true
		}
	}
	return f
}
