package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "taskboard"

	// tokenKey is the keyring entry holding the bearer credential.
	tokenKey = "api-token"
)

// Store caches the bearer credential used for REST header injection.
// Session continuity otherwise rides on cookies held by the API client.
type Store interface {
	Token() (string, error)
	SetToken(token string) error
	ClearToken() error
}

// Keyring is a Store backed by a keyring.Keyring.
type Keyring struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the system keyring.
func Open() (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/taskboard/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("taskboard-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// NewMemory returns a Store that keeps the credential in process memory.
// Used when no system keyring is available, and in tests.
func NewMemory() *Keyring {
	return &Keyring{ring: keyring.NewArrayKeyring(nil)}
}

// Token returns the cached credential, or "" when none is stored.
func (k *Keyring) Token() (string, error) {
	item, err := k.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", tokenKey, err)
	}
	return string(item.Data), nil
}

// SetToken stores the credential.
func (k *Keyring) SetToken(token string) error {
	err := k.ring.Set(keyring.Item{
		Key:   tokenKey,
		Data:  []byte(token),
		Label: "taskboard API token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", tokenKey, err)
	}
	return nil
}

// ClearToken removes the credential. Removing an absent credential is not an error.
func (k *Keyring) ClearToken() error {
	err := k.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", tokenKey, err)
	}
	return nil
}
