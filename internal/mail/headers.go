package mail

import (
	"strings"
)

// ParseHeaderBlock parses a raw RFC 5322 header block into a map keyed by
// lower-cased header name. Continuation lines (lines beginning with
// whitespace) are folded into the previous header's value.
func ParseHeaderBlock(raw []byte) map[string]string {
	headers := make(map[string]string)
	lines := strings.Split(string(raw), "\n")

	var name, value string
	flush := func() {
		if name != "" {
			headers[strings.ToLower(name)] = value
		}
	}

	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			// Blank line ends the header block.
			break
		}

		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && name != "" {
			value += " " + strings.TrimSpace(line)
			continue
		}

		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}

		flush()
		name = strings.TrimSpace(line[:colon])
		value = strings.TrimSpace(line[colon+1:])
	}
	flush()

	return headers
}

// SplitHeaderAndBody splits a raw message blob on the first blank line.
// The body is empty when no header/body boundary is found.
func SplitHeaderAndBody(raw []byte) (header, body []byte) {
	text := string(raw)
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		if i := strings.Index(text, sep); i >= 0 {
			return []byte(text[:i]), []byte(text[i+len(sep):])
		}
	}
	return raw, nil
}
