package imapx

import (
	"strconv"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
)

func partKey(s *imap.FetchItemBodySection) string {
	nums := make([]string, 0, len(s.Part))
	for _, p := range s.Part {
		nums = append(nums, strconv.Itoa(p))
	}
	return strings.Join(nums, ".")
}

func sectionLookup(parts map[string][]byte) func(*imap.FetchItemBodySection) []byte {
	return func(s *imap.FetchItemBodySection) []byte {
		if s.Specifier == imap.PartSpecifierText {
			return parts["text"]
		}
		return parts[partKey(s)]
	}
}

func TestBodySectionFallbackOrder(t *testing.T) {
	// A multipart/alternative nested inside a multipart/mixed only
	// populates the 1.1 and 1.2 children.
	parts := map[string][]byte{
		"1.1": []byte("nested plain part"),
		"1.2": []byte("<p>nested html part</p>"),
	}
	assert.Equal(t, []byte("nested plain part"), firstBodySection(sectionLookup(parts)))

	// A shallower part wins over the nested children.
	parts["2"] = []byte("second part")
	assert.Equal(t, []byte("second part"), firstBodySection(sectionLookup(parts)))

	parts["1"] = []byte("first part")
	assert.Equal(t, []byte("first part"), firstBodySection(sectionLookup(parts)))

	// The full text section beats every positional part.
	parts["text"] = []byte("whole body")
	assert.Equal(t, []byte("whole body"), firstBodySection(sectionLookup(parts)))

	assert.Nil(t, firstBodySection(sectionLookup(nil)))
}
