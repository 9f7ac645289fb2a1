package mail

import (
	"io"
	"strings"

	gomail "github.com/emersion/go-message/mail"
)

// DecodeQuotedPrintable resolves soft line breaks and =XX escape
// sequences in a body that was stored verbatim. It is deliberately
// lenient: real-world bodies mix encodings and truncate sequences, and a
// strict decoder would reject content we already committed to storing.
func DecodeQuotedPrintable(s string) string {
	// Soft line breaks first: "=\r\n" and "=\n" continue the line.
	s = strings.ReplaceAll(s, "=\r\n", "")
	s = strings.ReplaceAll(s, "=\n", "")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '=' && i+2 < len(s) {
			if hi, ok1 := unhex(s[i+1]); ok1 {
				if lo, ok2 := unhex(s[i+2]); ok2 {
					b.WriteByte(hi<<4 | lo)
					i += 2
					continue
				}
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// ExtractPlainText recovers readable text from a deferred raw body. A
// body stored verbatim may be a full MIME message part; when it parses
// as one, the first text/plain part wins, with text/html as a fallback.
// Otherwise the body is treated as quoted-printable text.
func ExtractPlainText(raw string) string {
	if text, ok := extractMIMEText(raw); ok {
		return text
	}
	return DecodeQuotedPrintable(raw)
}

// extractMIMEText walks MIME parts looking for inline text.
func extractMIMEText(raw string) (string, bool) {
	mr, err := gomail.CreateReader(strings.NewReader(raw))
	if err != nil {
		return "", false
	}
	defer mr.Close()

	var html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			return string(body), true
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(body)
		}
	}

	if html != "" {
		return html, true
	}
	return "", false
}
