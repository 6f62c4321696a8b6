package tokenstore

import (
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// KeyringStore stores each token as a JSON blob under (service, key) in
// whichever OS-native secret store go-keyring resolves to on this
// platform (Keychain on macOS, Credential Manager on Windows, Secret
// Service on Linux). It deliberately does not implement ListTokens with
// real enumeration: most OS keyrings don't support it, so the caller is
// expected to front this with a CachingStore, which is authoritative for
// listing instead.
type KeyringStore struct {
	service string
}

// NewKeyringStore builds a keyring-backed Store under the given service
// name.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

// keyring.Set/Get/Delete failures (other than the not-found sentinel) are
// classed Connection rather than IO: an OS keyring is an external service
// (a daemon/session that can be locked or momentarily unavailable), so
// Retryable() treating it like a transport fault is the useful default.
func (k *KeyringStore) StoreToken(key string, data TokenData) error {
	payload, err := encodeForStorage(data)
	if err != nil {
		return tunnelerr.NewSerdeError("failed to encode token for storage", err)
	}
	if err := keyring.Set(k.service, key, string(payload)); err != nil {
		return tunnelerr.NewConnectionError("failed to store token in OS keyring", err)
	}
	return nil
}

func (k *KeyringStore) RetrieveToken(key string) (*TokenData, bool, error) {
	raw, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, tunnelerr.NewConnectionError("failed to read token from OS keyring", err)
	}
	data, err := decodeFromStorage([]byte(raw))
	if err != nil {
		return nil, false, tunnelerr.NewSerdeError("failed to decode stored token", err)
	}
	return &data, true, nil
}

func (k *KeyringStore) DeleteToken(key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return tunnelerr.NewConnectionError("failed to delete token from OS keyring", err)
	}
	return nil
}

// ListTokens always returns an empty list: OS keyring enumeration is not
// universally supported across platforms. Callers needing enumeration
// rely on the write-through cache in CachingStore.
func (*KeyringStore) ListTokens() ([]string, error) {
	return nil, nil
}

func (*KeyringStore) IsAvailable() bool {
	// A cheap round-trip probe: write then delete a throwaway key.
	const probeKey = "__magictunnel_probe__"
	if err := keyring.Set("MagicTunnel-Probe", probeKey, "1"); err != nil {
		return false
	}
	_ = keyring.Delete("MagicTunnel-Probe", probeKey)
	return true
}
