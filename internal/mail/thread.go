package mail

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	messageIDPattern = regexp.MustCompile(`<[^>]+>`)
	replyPrefix      = regexp.MustCompile(`^(?i:(re|fw|fwd)):\s*`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// CleanMessageID strips surrounding whitespace and angle brackets from a
// Message-ID header value.
func CleanMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}

// ParseReferences extracts the ordered Message-ID list from a References
// header. IDs may be space or newline separated.
func ParseReferences(header string) []string {
	if header == "" {
		return nil
	}

	cleaned := strings.TrimSpace(whitespaceRun.ReplaceAllString(header, " "))
	matches := messageIDPattern.FindAllString(cleaned, -1)

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if id := CleanMessageID(m); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// NormalizeSubject strips reply/forward prefixes and collapses whitespace
// so that replies map onto their thread's subject.
func NormalizeSubject(subject string) string {
	for {
		stripped := replyPrefix.ReplaceAllString(subject, "")
		if stripped == subject {
			break
		}
		subject = stripped
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(subject, " "))
}

// SyntheticMessageID deterministically synthesizes an identifier for a
// message that carries none, so re-processing the same message always
// yields the same identifier.
func SyntheticMessageID(uid uint32, folder string, receivedAt time.Time) string {
	seed := fmt.Sprintf("%d%s%s", uid, folder, receivedAt.UTC().Format(time.RFC3339))
	return "synthetic-" + hashPrefix(seed) + "@local"
}

// AssignThreadID computes the stable thread identifier for a message.
// It is pure and deterministic: the root is the first References entry,
// else the In-Reply-To identifier, else the message's own (possibly
// synthetic) identifier.
//
// When only In-Reply-To is present the true root may already be known to
// the store under a different thread; reconciling that requires a lookup
// and is the import pipeline's responsibility.
func AssignThreadID(m *ParsedMessage) string {
	messageID := CleanMessageID(m.MessageID)
	if messageID == "" {
		messageID = SyntheticMessageID(m.UID, m.Folder, m.ReceivedAt)
	}

	var root string
	switch {
	case len(ParseReferences(m.References)) > 0:
		root = ParseReferences(m.References)[0]
	case CleanMessageID(m.InReplyTo) != "":
		root = CleanMessageID(m.InReplyTo)
	default:
		root = messageID
	}

	return ThreadIDFromRoot(root)
}

// ThreadIDFromRoot derives the thread identifier from a root message id.
func ThreadIDFromRoot(root string) string {
	return "thread-" + hashPrefix(root)
}

// hashPrefix returns the first 16 hex characters of the SHA-256 of s.
func hashPrefix(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
