// Package validators implements the credential validators of C6: each
// one inspects a request (or a raw credential) and yields a uniform
// authresult.Result, or (nil, nil) when it does not apply.
package validators

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authconfig"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// APIKeyValidator matches a request's configured header against the set
// of active API keys.
type APIKeyValidator struct {
	Enabled bool
	Keys    map[string]authconfig.APIKeyEntry
}

// NewAPIKeyValidator builds a validator over the given key set.
func NewAPIKeyValidator(enabled bool, keys map[string]authconfig.APIKeyEntry) *APIKeyValidator {
	return &APIKeyValidator{Enabled: enabled, Keys: keys}
}

// Validate returns (result, nil) on a match, (nil, nil) when disabled,
// and (nil, err) on a malformed header or no match.
func (v *APIKeyValidator) Validate(r *http.Request) (*authresult.Result, error) {
	if !v.Enabled {
		return nil, nil
	}

	for _, entry := range v.Keys {
		raw := r.Header.Get(entry.HeaderName)
		if raw == "" {
			continue
		}
		token, ok := extractFromFormat(raw, entry.HeaderFormat)
		if !ok {
			continue
		}
		if constantTimeEqual(token, entry.Key) {
			return &authresult.Result{
				Kind:        authresult.KindAPIKey,
				UserID:      entry.Name,
				Permissions: entry.Permissions,
				AccessToken: entry.Key,
			}, nil
		}
	}

	return nil, tunnelerr.NewAuthError("no matching api key found", nil)
}

// extractFromFormat reverses a "<prefix> {key}" template: it strips
// whatever text surrounds the literal "{key}" placeholder.
func extractFromFormat(raw, format string) (string, bool) {
	idx := strings.Index(format, "{key}")
	if idx < 0 {
		return "", false
	}
	prefix := format[:idx]
	suffix := format[idx+len("{key}"):]
	if !strings.HasPrefix(raw, prefix) || !strings.HasSuffix(raw, suffix) {
		return "", false
	}
	return raw[len(prefix) : len(raw)-len(suffix)], true
}

// constantTimeEqual compares two strings without leaking timing
// information about where they first differ. The source this spec is
// drawn from compared API keys with a plain ==; this fixes that (see
// the resolved Open Question on API-key comparison).
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
