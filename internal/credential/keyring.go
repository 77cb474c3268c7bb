// Package credential stores secrets in the system keyring so they can
// stay out of the config file. Config file values still win when set;
// the keyring is a fallback for imap.password, smtp.password and
// llm.api_key.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "travelbot"

// Well-known credential keys.
const (
	KeyIMAPPassword = "imap-password"
	KeySMTPPassword = "smtp-password"
	KeyLLMAPIKey    = "llm-api-key"
)

// KnownKeys lists the credential keys the daemon reads at startup.
func KnownKeys() []string {
	return []string{KeyIMAPPassword, KeySMTPPassword, KeyLLMAPIKey}
}

// ValidKey reports whether key names a credential the daemon uses.
func ValidKey(key string) bool {
	for _, k := range KnownKeys() {
		if k == key {
			return true
		}
	}
	return false
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
		FileDir:                  "~/.config/travelbot/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("travelbot-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
