// Package tokenstore implements the multi-backend secure token store:
// an OS-keyring backend (macOS Keychain / Windows Credential Manager /
// Linux Secret Service, all via zalando/go-keyring), an AES-256-GCM
// encrypted-file backend, and an in-memory backend for tests — fronted
// by a write-through cache that is authoritative for enumeration, since
// OS keyrings generally don't support listing their own entries.
package tokenstore

import (
	"encoding/json"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/secretval"
)

// refreshExpiryBuffer is a fixed 60s expiry buffer. TokenData.IsExpired
// does not apply it (a TokenData is expired only once now is past
// expires_at); the buffered check is authcontext.ProviderToken.IsExpired,
// which keeps its own copy of the value. Callers configure only
// RefreshThreshold.
const refreshExpiryBuffer = 60 * time.Second

// TokenData is the persisted unit the store manages. expires_at is
// always absolute wall-clock; a token with no expiry never expires.
type TokenData struct {
	AccessToken   secretval.Secret  `json:"access_token"`
	RefreshToken  *secretval.Secret `json:"refresh_token,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Scopes        []string          `json:"scopes,omitempty"`
	Provider      string            `json:"provider"`
	TokenType     string            `json:"token_type"`
	Audience      string            `json:"audience,omitempty"`
	Resource      string            `json:"resource,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastRefreshed *time.Time        `json:"last_refreshed,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// IsExpired tolerates a missing expiry (treated as never-expires).
func (t *TokenData) IsExpired() bool {
	if t.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*t.ExpiresAt)
}

// NeedsRefresh is true once now + threshold crosses expires_at. A missing
// expiry never needs refreshing.
func (t *TokenData) NeedsRefresh(threshold time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !time.Now().Add(threshold).Before(*t.ExpiresAt)
}

// Zero overwrites the sensitive fields in place.
func (t *TokenData) Zero() {
	t.AccessToken.Zero()
	if t.RefreshToken != nil {
		t.RefreshToken.Zero()
	}
}

// wireTokenData is the storage-only mirror of TokenData: its Secret
// fields are marshaled with their real plaintext (via
// Secret.MarshalForStorage semantics) rather than the redacted form
// TokenData.MarshalJSON would otherwise use if serialized directly. Every
// backend must go through encodeForStorage/decodeFromStorage, never
// json.Marshal(TokenData) directly, or secrets silently turn into the
// literal string "REDACTED" on disk.
type wireTokenData struct {
	AccessToken   string            `json:"access_token"`
	RefreshToken  string            `json:"refresh_token,omitempty"`
	HasRefresh    bool              `json:"has_refresh"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Scopes        []string          `json:"scopes,omitempty"`
	Provider      string            `json:"provider"`
	TokenType     string            `json:"token_type"`
	Audience      string            `json:"audience,omitempty"`
	Resource      string            `json:"resource,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastRefreshed *time.Time        `json:"last_refreshed,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func encodeForStorage(t TokenData) ([]byte, error) {
	w := wireTokenData{
		AccessToken:   t.AccessToken.Expose(),
		HasRefresh:    t.RefreshToken != nil,
		ExpiresAt:     t.ExpiresAt,
		Scopes:        t.Scopes,
		Provider:      t.Provider,
		TokenType:     t.TokenType,
		Audience:      t.Audience,
		Resource:      t.Resource,
		CreatedAt:     t.CreatedAt,
		LastRefreshed: t.LastRefreshed,
		UserID:        t.UserID,
		Metadata:      t.Metadata,
	}
	if t.RefreshToken != nil {
		w.RefreshToken = t.RefreshToken.Expose()
	}
	return json.Marshal(w)
}

func decodeFromStorage(data []byte) (TokenData, error) {
	var w wireTokenData
	if err := json.Unmarshal(data, &w); err != nil {
		return TokenData{}, err
	}
	t := TokenData{
		AccessToken:   secretval.New(w.AccessToken),
		ExpiresAt:     w.ExpiresAt,
		Scopes:        w.Scopes,
		Provider:      w.Provider,
		TokenType:     w.TokenType,
		Audience:      w.Audience,
		Resource:      w.Resource,
		CreatedAt:     w.CreatedAt,
		LastRefreshed: w.LastRefreshed,
		UserID:        w.UserID,
		Metadata:      w.Metadata,
	}
	if w.HasRefresh {
		rt := secretval.New(w.RefreshToken)
		t.RefreshToken = &rt
	}
	return t, nil
}

// Key builds the standard storage key "<unique_user_id>:<provider>[:<user_id>]".
func Key(uniqueUserID, provider, userID string) string {
	k := uniqueUserID + ":" + provider
	if userID != "" {
		k += ":" + userID
	}
	return k
}
