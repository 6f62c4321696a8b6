// Package authcontext defines AuthenticationContext, the object that
// flows downstream of a successful authentication: user identity,
// session id, granted scopes, and a per-provider token map used to build
// outbound headers for tool executors. It is built once from an
// authresult.Result and is read-only from then on.
package authcontext

import (
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/secretval"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// ProviderToken is one entry in an AuthenticationContext's provider_tokens
// map.
type ProviderToken struct {
	AccessToken  secretval.Secret
	RefreshToken *secretval.Secret
	Type         string
	ExpiresAt    *time.Time
	Scopes       []string
	Metadata     map[string]string
}

// expiryBuffer makes a ProviderToken count as expired 60s before its
// expires_at. tokenstore.TokenData.IsExpired applies no such buffer, so
// the two can disagree within that last minute.
const expiryBuffer = 60 * time.Second

// IsExpired tolerates a missing expiry (treated as never-expires) and
// applies the fixed internal buffer, per spec's resolved Open Question.
func (p ProviderToken) IsExpired() bool {
	if p.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(expiryBuffer).After(*p.ExpiresAt)
}

// AuthenticationContext is the object downstream tool executors consume.
type AuthenticationContext struct {
	UserID         string
	SessionID      string
	AuthMethod     authresult.Kind
	Scopes         []string
	Timestamp      time.Time
	ProviderTokens map[string]ProviderToken
	Metadata       map[string]string
}

// New builds an AuthenticationContext from a validator's result. When the
// result carries an access token or is a pending device-code result, the
// provider_tokens map is seeded with one entry named after the method
// family: "api_key", "oauth", "jwt", "<provider>" for service accounts,
// or "device_code". Otherwise the map starts empty.
func New(result *authresult.Result, sessionID string) *AuthenticationContext {
	ctx := &AuthenticationContext{
		UserID:         result.UserID,
		SessionID:      sessionID,
		AuthMethod:     result.Kind,
		Scopes:         result.Scopes,
		Timestamp:      time.Now(),
		ProviderTokens: make(map[string]ProviderToken),
		Metadata:       result.Metadata,
	}

	name := providerTokenName(result)
	if result.AccessToken != "" || result.Pending {
		ctx.ProviderTokens[name] = ProviderToken{
			AccessToken: secretval.New(result.AccessToken),
			Type:        string(result.Kind),
			ExpiresAt:   result.ExpiresAt,
			Scopes:      result.Scopes,
			Metadata:    result.Metadata,
		}
	}

	return ctx
}

// providerTokenName picks the provider_tokens key for a result: the
// method family name for api_key/oauth/jwt/device_code, or the concrete
// provider name for service accounts (which can have many providers:
// github, gitlab, google, ...).
func providerTokenName(result *authresult.Result) string {
	switch result.Kind {
	case authresult.KindServiceAccount:
		if result.Provider != "" {
			return result.Provider
		}
		return string(result.Kind)
	default:
		return string(result.Kind)
	}
}

// GetAuthHeaders builds the outbound header map. X-Session-ID and
// X-User-ID are always present. When provider names a known token, or no
// provider is named and some non-expired token exists, Authorization and
// X-Auth-Provider are added too. With no provider named and several
// non-expired tokens, the one used is the first found in map iteration
// order.
func (c *AuthenticationContext) GetAuthHeaders(provider *string) map[string]string {
	headers := map[string]string{
		"X-Session-ID": c.SessionID,
		"X-User-ID":    c.UserID,
	}

	var name string
	var tok ProviderToken
	var ok bool

	if provider != nil {
		tok, ok = c.ProviderTokens[*provider]
		name = *provider
	} else {
		for n, t := range c.ProviderTokens {
			if !t.IsExpired() {
				name, tok, ok = n, t, true
				break
			}
		}
	}

	if ok && !tok.AccessToken.IsEmpty() {
		authType := "Bearer"
		if tok.Type != "" {
			authType = headerAuthType(tok.Type)
		}
		headers["Authorization"] = authType + " " + tok.AccessToken.Expose()
		headers["X-Auth-Provider"] = name
	}

	return headers
}

func headerAuthType(kind string) string {
	switch kind {
	case string(authresult.KindAPIKey):
		return "ApiKey"
	case string(authresult.KindServiceAccount):
		return "ServiceAccount"
	case string(authresult.KindDeviceCode):
		return "DeviceCode"
	default:
		return "Bearer"
	}
}

// Validate reports an error if any provider token has expired, or if
// AuthMethod is set (non-empty) but UserID is empty or "anonymous".
func (c *AuthenticationContext) Validate() error {
	for name, tok := range c.ProviderTokens {
		if tok.IsExpired() {
			return tunnelerr.NewAuthError("provider token expired: "+name, nil)
		}
	}
	if c.AuthMethod != "" && (c.UserID == "" || c.UserID == "anonymous") {
		return tunnelerr.NewAuthError("authenticated context missing a user id", nil)
	}
	return nil
}
