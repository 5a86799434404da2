package credential

import (
	"context"
	"fmt"

	"github.com/99designs/keyring"
)

// itemGetter is the read side of keyring.Keyring.
type itemGetter interface {
	Get(key string) (keyring.Item, error)
}

// KeyringStore reads the credential from the OS keyring.
type KeyringStore struct {
	ring itemGetter
	key  string
}

// OpenKeyring opens the system keyring for service, falling back to an
// encrypted file under fileDir.
func OpenKeyring(service, fileDir, filePassword string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(filePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func NewKeyringStore(ring itemGetter, key string) *KeyringStore {
	return &KeyringStore{ring: ring, key: key}
}

func (s *KeyringStore) Get(_ context.Context) (string, bool) {
	item, err := s.ring.Get(s.key)
	if err != nil || len(item.Data) == 0 {
		return "", false
	}
	return string(item.Data), true
}
