package mail

import (
	"time"

	"github.com/relaycrm/mailroom/internal/model"
)

// Address is a single parsed mailbox address with an optional display name.
type Address struct {
	Email string
	Name  string
}

// Flags are the standard per-message flags carried by the protocol.
type Flags struct {
	Seen     bool
	Flagged  bool
	Answered bool
	Draft    bool
	Deleted  bool
}

// RawMessage is the protocol client's output for one fetched message.
// It exists only within one sync cycle.
type RawMessage struct {
	// UID is the server-assigned, per-folder sequence identifier.
	UID uint32

	// Flags are the raw protocol flag strings (e.g. "\Seen").
	Flags []string

	// Size is the reported byte size of the message body.
	Size int64

	// Header is the raw header block.
	Header []byte

	// Body is the body bytes as extracted by the client's ordered
	// part fallback.
	Body []byte

	// Decoded reports whether the body was small enough to decode
	// inline. When false the body is stored verbatim and decoding is
	// deferred to the on-demand reparse operation.
	Decoded bool
}

// ParsedMessage is a structured message ready for filtering and import.
// It exists only within one sync cycle.
type ParsedMessage struct {
	MessageID  string
	InReplyTo  string
	References string

	Subject string
	From    Address
	To      []Address
	Cc      []Address

	Direction model.Direction
	BodyPlain string
	Flags     Flags

	Folder     string
	UID        uint32
	SentAt     time.Time
	ReceivedAt time.Time

	// NeedsParsing marks an oversized body stored verbatim, to be
	// decoded later by the reparse operation.
	NeedsParsing bool
}

// ToEmailList returns the bare addresses of a parsed address list.
func ToEmailList(addrs []Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Email)
	}
	return out
}
