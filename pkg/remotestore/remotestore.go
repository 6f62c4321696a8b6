// Package remotestore implements C15: a tokenstore.Store decorator that
// scopes every key to one remote client's isolation key and verifies, on
// read, that the stored token's metadata still identifies that same
// client — guarding against a key collision or a stale entry surviving
// an isolation-key rotation from silently handing one client's token to
// another.
package remotestore

import (
	"strings"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tokenstore"
)

const keyPrefix = "rmt_"
const keySeparator = "::"

// RemoteStore wraps a base tokenstore.Store, rewriting keys to
// "rmt_<isolationKeyPrefix>::<original>" and cross-checking client_id,
// client_ip, and session_id metadata on every read.
type RemoteStore struct {
	base         tokenstore.Store
	isolationKey string
	clientID     string
	clientIP     string
	sessionID    string
}

// New builds a RemoteStore bound to one client's isolation key and the
// identity fields every read must match.
func New(base tokenstore.Store, isolationKey, clientID, clientIP, sessionID string) *RemoteStore {
	return &RemoteStore{
		base:         base,
		isolationKey: isolationKey,
		clientID:     clientID,
		clientIP:     clientIP,
		sessionID:    sessionID,
	}
}

func (r *RemoteStore) scopedKey(key string) string {
	prefix := r.isolationKey
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return keyPrefix + prefix + keySeparator + key
}

// StoreToken scopes key and stamps the isolation-identifying metadata
// onto the token before delegating to the base store.
func (r *RemoteStore) StoreToken(key string, data tokenstore.TokenData) error {
	if data.Metadata == nil {
		data.Metadata = make(map[string]string, 3)
	}
	data.Metadata["client_id"] = r.clientID
	data.Metadata["client_ip"] = r.clientIP
	data.Metadata["session_id"] = r.sessionID
	return r.base.StoreToken(r.scopedKey(key), data)
}

// RetrieveToken fetches the scoped key and verifies the token's metadata
// still carries this store's client_id/client_ip/session_id; a mismatch
// is reported as not-found rather than as the foreign token.
func (r *RemoteStore) RetrieveToken(key string) (*tokenstore.TokenData, bool, error) {
	token, ok, err := r.base.RetrieveToken(r.scopedKey(key))
	if err != nil || !ok || token == nil {
		return nil, false, err
	}
	if token.Metadata["client_id"] != r.clientID ||
		token.Metadata["client_ip"] != r.clientIP ||
		token.Metadata["session_id"] != r.sessionID {
		return nil, false, nil
	}
	return token, true, nil
}

// DeleteToken removes the scoped key from the base store.
func (r *RemoteStore) DeleteToken(key string) error {
	return r.base.DeleteToken(r.scopedKey(key))
}

// ListTokens returns only the unscoped portion of keys belonging to this
// store's isolation-key prefix.
func (r *RemoteStore) ListTokens() ([]string, error) {
	all, err := r.base.ListTokens()
	if err != nil {
		return nil, err
	}
	prefix := r.scopedKeyPrefix()
	var mine []string
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			mine = append(mine, strings.TrimPrefix(k, prefix))
		}
	}
	return mine, nil
}

func (r *RemoteStore) scopedKeyPrefix() string {
	prefix := r.isolationKey
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return keyPrefix + prefix + keySeparator
}

// IsAvailable delegates to the base store.
func (r *RemoteStore) IsAvailable() bool {
	return r.base.IsAvailable()
}
