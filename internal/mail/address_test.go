package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in        string
		wantEmail string
		wantName  string
		wantOK    bool
	}{
		{"alice@example.com", "alice@example.com", "", true},
		{"Alice Smith <alice@example.com>", "alice@example.com", "Alice Smith", true},
		{`"Smith, Alice" <alice@example.com>`, "alice@example.com", "Smith, Alice", true},
		{"ALICE@EXAMPLE.COM", "alice@example.com", "", true},
		{"'Alice' <alice@example.com>", "alice@example.com", "Alice", true},
		{"", "", "", false},
		{"not an address", "", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseAddress(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.in)
		if ok {
			assert.Equal(t, tt.wantEmail, got.Email, "input %q", tt.in)
			assert.Equal(t, tt.wantName, got.Name, "input %q", tt.in)
		}
	}
}

func TestParseAddressList(t *testing.T) {
	got := ParseAddressList(`Alice <alice@a.com>, "Bob, Jr." <bob@b.com>, carol@c.com`)
	require.Len(t, got, 3)
	assert.Equal(t, "alice@a.com", got[0].Email)
	assert.Equal(t, "bob@b.com", got[1].Email)
	assert.Equal(t, "Bob, Jr.", got[1].Name)
	assert.Equal(t, "carol@c.com", got[2].Email)

	assert.Empty(t, ParseAddressList(""))
	assert.Empty(t, ParseAddressList("garbage, more garbage"))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("alice@example.com"))
	assert.True(t, IsValidEmail("a.b+c@sub.example.co"))
	assert.False(t, IsValidEmail("alice@example"))
	assert.False(t, IsValidEmail("alice example@example.com"))
	assert.False(t, IsValidEmail("@example.com"))
	assert.False(t, IsValidEmail(""))
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("Alice@Example.COM"))
	assert.Equal(t, "", DomainOf("no-at-sign"))
	assert.Equal(t, "", DomainOf("trailing@"))
}

func TestSplitFullName(t *testing.T) {
	first, last := SplitFullName("Alice")
	assert.Equal(t, "Alice", first)
	assert.Equal(t, "", last)

	first, last = SplitFullName("Alice van der Berg")
	assert.Equal(t, "Alice", first)
	assert.Equal(t, "van der Berg", last)

	first, last = SplitFullName("  ")
	assert.Equal(t, "", first)
	assert.Equal(t, "", last)
}
