package mail

import (
	"strings"

	"github.com/relaycrm/mailroom/internal/model"
)

// DedupPolicy decides whether a message fetched from one monitored
// mailbox should be imported at all. The same physical message can be
// fetched independently from several mailboxes; the policy converges on
// at most one import per meaningfully new delivery.
type DedupPolicy struct {
	// InternalDomains is the organization's own domain set.
	InternalDomains []string
}

// ShouldImport applies the delivery deduplication rules in order:
//  1. Outgoing messages are always imported.
//  2. Mailbox address in To is always imported.
//  3. Mailbox address only in Cc is imported only when no To address
//     belongs to an internal domain (external correspondence the mailbox
//     was copied on). Internal primary recipients mean another monitored
//     mailbox will import it.
//  4. Mailbox absent from both To and Cc is never imported.
func (p DedupPolicy) ShouldImport(
	direction model.Direction,
	to, cc []Address,
	mailboxEmail string,
) bool {
	if direction == model.DirectionOutgoing {
		return true
	}

	mailbox := strings.ToLower(mailboxEmail)
	if containsAddress(to, mailbox) {
		return true
	}

	if containsAddress(cc, mailbox) {
		for _, a := range to {
			if p.isInternal(a.Email) {
				return false
			}
		}
		return true
	}

	return false
}

func (p DedupPolicy) isInternal(email string) bool {
	domain := DomainOf(email)
	for _, d := range p.InternalDomains {
		if strings.EqualFold(domain, d) {
			return true
		}
	}
	return false
}

func containsAddress(addrs []Address, email string) bool {
	for _, a := range addrs {
		if strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}
