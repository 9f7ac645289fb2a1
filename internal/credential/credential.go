package credential

import (
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "mailroom"

// Provider resolves the IMAP password for a mailbox. Passwords never
// live in the configuration file or the database.
type Provider interface {
	Password(mailboxID string) (string, error)
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailroom/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailroom-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringProvider reads passwords from the system keyring, keyed by
// mailbox id.
type KeyringProvider struct{}

func (KeyringProvider) Password(mailboxID string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(passwordKey(mailboxID))
	if err != nil {
		return "", fmt.Errorf("getting password for mailbox %s: %w", mailboxID, err)
	}
	return string(item.Data), nil
}

// SetPassword stores a mailbox password in the system keyring.
func SetPassword(mailboxID, password string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  passwordKey(mailboxID),
		Data: []byte(password),
	})
	if err != nil {
		return fmt.Errorf("setting password for mailbox %s: %w", mailboxID, err)
	}
	return nil
}

// DeletePassword removes a mailbox password from the system keyring.
func DeletePassword(mailboxID string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(passwordKey(mailboxID))
	if err != nil {
		return fmt.Errorf("deleting password for mailbox %s: %w", mailboxID, err)
	}
	return nil
}

func passwordKey(mailboxID string) string {
	return "imap-password:" + mailboxID
}

// EnvProvider reads passwords from the environment. The variable name is
// MAILROOM_IMAP_PASSWORD_<MAILBOX_ID> with dashes mapped to underscores.
// Useful for containers where no keyring backend is available.
type EnvProvider struct{}

func (EnvProvider) Password(mailboxID string) (string, error) {
	key := "MAILROOM_IMAP_PASSWORD_" + strings.ToUpper(strings.ReplaceAll(mailboxID, "-", "_"))
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is not set", key)
	}
	return v, nil
}

// Static is a fixed in-memory mapping from mailbox id to password.
type Static map[string]string

func (s Static) Password(mailboxID string) (string, error) {
	v, ok := s[mailboxID]
	if !ok {
		return "", fmt.Errorf("no password for mailbox %s", mailboxID)
	}
	return v, nil
}
