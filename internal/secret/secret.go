// internal/secret/secret.go
package secret

import (
	"fmt"

	"github.com/99designs/keyring"
)

// ServiceName identifies this application to the OS credential store.
const ServiceName = "gmail-notifier"

// kindOAuthToken tags stored secrets so other kinds can coexist later.
const kindOAuthToken = "oauth2-token"

// TokenKey composes the secret-store key for an account's refresh token.
func TokenKey(email string) string {
	return kindOAuthToken + ":" + email
}

// Store is the narrow secret-store surface the core needs. The production
// implementation is the OS keyring; tests use Memory.
type Store interface {
	Save(key string, secret []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// Keyring stores secrets in the system credential store.
type Keyring struct {
	ring keyring.Keyring
}

// OpenKeyring opens the system credential store for this application.
// fileDir is the fallback location for the encrypted-file backend.
func OpenKeyring(fileDir string) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(ServiceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

func (k *Keyring) Save(key string, secret []byte) error {
	if err := k.ring.Set(keyring.Item{Key: key, Data: secret}); err != nil {
		return fmt.Errorf("saving secret %q: %w", key, err)
	}
	return nil
}

func (k *Keyring) Get(key string) ([]byte, error) {
	item, err := k.ring.Get(key)
	if err != nil {
		return nil, fmt.Errorf("getting secret %q: %w", key, err)
	}
	return item.Data, nil
}

func (k *Keyring) Delete(key string) error {
	if err := k.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting secret %q: %w", key, err)
	}
	return nil
}

var _ Store = (*Keyring)(nil)
