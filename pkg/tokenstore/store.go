package tokenstore

import (
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/usercontext"
)

// Store is the capability every backend must satisfy, mirroring the
// teacher's keyring.Provider / secrets.Provider interface shape
// (Name/IsAvailable/Set/Get/Delete plus enumeration).
type Store interface {
	StoreToken(key string, data TokenData) error
	RetrieveToken(key string) (*TokenData, bool, error)
	DeleteToken(key string) error
	ListTokens() ([]string, error)
	IsAvailable() bool
}

// serviceName is the (service, key) tuple's fixed service component used
// by the OS-keyring backends.
const serviceName = "MagicTunnel"

// New builds the Store a given UserContext should use: a write-through
// CachingStore fronting the backend selected by uc.Backend. The cache is
// always present — it's what makes ListTokens meaningful for backends
// (keyring-style) that can't enumerate their own entries.
func New(uc *usercontext.UserContext) (Store, error) {
	backend, err := newBackend(uc)
	if err != nil {
		return nil, err
	}
	return NewCachingStore(backend), nil
}

func newBackend(uc *usercontext.UserContext) (Store, error) {
	switch uc.Backend {
	case usercontext.BackendKeychain, usercontext.BackendCredentialManager, usercontext.BackendSecretService:
		return NewKeyringStore(serviceName), nil
	case usercontext.BackendFilesystem:
		return NewFileStore(uc)
	default:
		return nil, tunnelerr.NewConfigError("unrecognized storage backend: "+string(uc.Backend), nil)
	}
}
