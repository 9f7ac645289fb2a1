package mail

import (
	netmail "net/mail"
	"regexp"
	"strings"
)

// emailPattern extracts a bare address out of malformed header text that
// net/mail refuses to parse. Some producers emit stray quotes or
// parentheses around otherwise usable addresses.
var emailPattern = regexp.MustCompile(
	`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`,
)

// validEmailPattern is the pre-import syntax check: one @, no whitespace,
// and a dotted domain.
var validEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail reports whether s looks like a deliverable address.
func IsValidEmail(s string) bool {
	return validEmailPattern.MatchString(s)
}

// ParseAddress parses a single address in any of the conventional forms:
// bare address, "Name <addr>", quoted-name variants. It falls back to
// scanning for an embedded address when the strict parser fails. The
// returned email is case-folded; ok is false when nothing usable is found.
func ParseAddress(s string) (Address, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, false
	}

	if a, err := netmail.ParseAddress(s); err == nil {
		return Address{
			Email: strings.ToLower(a.Address),
			Name:  cleanDisplayName(a.Name),
		}, true
	}

	email := emailPattern.FindString(s)
	if email == "" {
		return Address{}, false
	}

	// Best-effort display name from "Name <addr>" shapes.
	name := ""
	if i := strings.Index(s, "<"); i > 0 {
		name = cleanDisplayName(s[:i])
	}

	return Address{Email: strings.ToLower(email), Name: name}, true
}

// ParseAddressList parses a comma-separated address list. Commas inside
// angle brackets are not treated as separators. Invalid entries are
// dropped silently; the result may legitimately be empty.
func ParseAddressList(s string) []Address {
	var out []Address
	for _, part := range splitAddressList(s) {
		if a, ok := ParseAddress(part); ok {
			out = append(out, a)
		}
	}
	return out
}

// splitAddressList splits on commas outside of <...>.
func splitAddressList(s string) []string {
	var parts []string
	var cur strings.Builder
	inBrackets := false

	for _, r := range s {
		switch {
		case r == '<':
			inBrackets = true
			cur.WriteRune(r)
		case r == '>':
			inBrackets = false
			cur.WriteRune(r)
		case r == ',' && !inBrackets:
			if p := strings.TrimSpace(cur.String()); p != "" {
				parts = append(parts, p)
			}
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if p := strings.TrimSpace(cur.String()); p != "" {
		parts = append(parts, p)
	}

	return parts
}

func cleanDisplayName(name string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(name), `"'()`))
}

// DomainOf returns the lower-cased domain of an address, or "" when the
// address has none.
func DomainOf(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}

// SplitFullName splits a display name into first name and the remainder.
func SplitFullName(full string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(full))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
