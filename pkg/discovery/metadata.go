// Package discovery implements C8: RFC 8414 authorization-server
// metadata discovery, RFC 9728 protected-resource metadata, scope/grant
// resolution, RFC 7591 dynamic client registration, and the out-of-band
// OAuth callback channel used by discovered (not statically configured)
// remote servers. It adapts toolhive's pkg/auth/discovery package (issuer
// derivation, WWW-Authenticate parsing) and pkg/auth/oauth/dynamic_registration.go
// (RFC 7591 request/response shapes) to the spec's per-remote-server
// cache.
package discovery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// defaultHTTPTimeout bounds every discovery network step.
const defaultHTTPTimeout = 30 * time.Second

const maxMetadataBytes = 1 << 20 // 1MB

// AuthServerMetadata is RFC 8414 authorization server metadata, the
// fields this package actually consumes.
type AuthServerMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
	GrantTypesSupported   []string `json:"grant_types_supported,omitempty"`
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`
}

// ProtectedResourceMetadata is RFC 9728 protected resource metadata.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers,omitempty"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
	BearerMethods        []string `json:"bearer_methods_supported,omitempty"`
}

// ManualOAuthMetadata lets an operator supply metadata directly when the
// well-known discovery fails — the spec's step-3 fallback.
type ManualOAuthMetadata struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	RegistrationEndpoint  string
	ScopesSupported       []string
	GrantTypesSupported   []string
	ResponseTypesSupported []string
}

// DiscoveredOAuthConfig is the resolved output of one discovery run for
// a remote server.
type DiscoveredOAuthConfig struct {
	AuthServer          AuthServerMetadata
	ProtectedResource   *ProtectedResourceMetadata
	ResolvedScopes      []string
	ResolvedGrantTypes  []string
	ResolvedResponseTypes []string
	DiscoveredAt        time.Time
}

// Client performs the HTTP legs of discovery.
type Client struct {
	http *http.Client
}

// NewClient builds a discovery Client with the spec-mandated timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: defaultHTTPTimeout}}
}

// FetchAuthServerMetadata fetches RFC 8414 metadata from discoveryEndpoint
// if non-empty, else from "<origin>/.well-known/oauth-authorization-server".
// It requires a non-empty authorization_endpoint and response_types_supported,
// defaults grant_types_supported to ["authorization_code"] when absent, and
// requires token_endpoint when that grant is present.
func (c *Client) FetchAuthServerMetadata(ctx context.Context, baseURL, discoveryEndpoint string) (*AuthServerMetadata, error) {
	endpoint := discoveryEndpoint
	if endpoint == "" {
		origin, err := originOf(baseURL)
		if err != nil {
			return nil, tunnelerr.NewConfigError("invalid server base URL for discovery", err)
		}
		endpoint = origin + "/.well-known/oauth-authorization-server"
	}

	var meta AuthServerMetadata
	if err := c.fetchJSON(ctx, endpoint, &meta); err != nil {
		return nil, err
	}

	if meta.AuthorizationEndpoint == "" {
		return nil, tunnelerr.NewAuthError("authorization server metadata missing authorization_endpoint", nil)
	}
	if len(meta.ResponseTypesSupported) == 0 {
		return nil, tunnelerr.NewAuthError("authorization server metadata missing response_types_supported", nil)
	}
	if len(meta.GrantTypesSupported) == 0 {
		meta.GrantTypesSupported = []string{"authorization_code"}
	}
	if containsString(meta.GrantTypesSupported, "authorization_code") && meta.TokenEndpoint == "" {
		return nil, tunnelerr.NewAuthError("authorization server metadata missing token_endpoint", nil)
	}

	return &meta, nil
}

// FetchProtectedResourceMetadata fetches RFC 9728 metadata from
// "<origin>/.well-known/oauth-protected-resource". A non-empty resource
// field is required.
func (c *Client) FetchProtectedResourceMetadata(ctx context.Context, baseURL string) (*ProtectedResourceMetadata, error) {
	origin, err := originOf(baseURL)
	if err != nil {
		return nil, tunnelerr.NewConfigError("invalid server base URL for resource metadata", err)
	}
	endpoint := origin + "/.well-known/oauth-protected-resource"

	var meta ProtectedResourceMetadata
	if err := c.fetchJSON(ctx, endpoint, &meta); err != nil {
		return nil, err
	}
	if meta.Resource == "" {
		return nil, tunnelerr.NewAuthError("protected resource metadata missing resource field", nil)
	}
	return &meta, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return tunnelerr.NewConnectionError("discovery request failed: "+endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tunnelerr.NewAuthError("discovery endpoint returned non-2xx status", nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return tunnelerr.NewConnectionError("failed to read discovery response", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return tunnelerr.NewAuthError("malformed discovery metadata", err)
	}
	return nil
}

func originOf(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// fromManual builds AuthServerMetadata from an operator-supplied
// fallback, used when step 1 (well-known fetch) fails.
func fromManual(m ManualOAuthMetadata) AuthServerMetadata {
	grants := m.GrantTypesSupported
	if len(grants) == 0 {
		grants = []string{"authorization_code"}
	}
	return AuthServerMetadata{
		AuthorizationEndpoint:  m.AuthorizationEndpoint,
		TokenEndpoint:          m.TokenEndpoint,
		RegistrationEndpoint:   m.RegistrationEndpoint,
		ScopesSupported:        m.ScopesSupported,
		GrantTypesSupported:    grants,
		ResponseTypesSupported: m.ResponseTypesSupported,
	}
}

// defaultScopes is the fallback scope set when nothing else resolves
// any, per spec.md §4.10.
var defaultScopes = []string{"mcp:read", "mcp:write", "mcp:tools"}

// ResolveScopes implements the priority order: manual override >
// intersection of AS/RS scopes (if both non-empty) > RS scopes > AS
// scopes > defaultScopes.
func ResolveScopes(manualOverride, asScopes, rsScopes []string) []string {
	if len(manualOverride) > 0 {
		return manualOverride
	}
	if len(asScopes) > 0 && len(rsScopes) > 0 {
		if inter := intersect(asScopes, rsScopes); len(inter) > 0 {
			return inter
		}
	}
	if len(rsScopes) > 0 {
		return rsScopes
	}
	if len(asScopes) > 0 {
		return asScopes
	}
	return append([]string(nil), defaultScopes...)
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []string
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

// IsSubset reports whether sub is fully contained in superset; used to
// decide whether a manual scope override merits a warning.
func IsSubset(sub, superset []string) bool {
	set := make(map[string]bool, len(superset))
	for _, v := range superset {
		set[v] = true
	}
	for _, v := range sub {
		if !set[v] {
			return false
		}
	}
	return true
}

// ResolveGrantTypes and ResolveResponseTypes apply the RFC 8414 default
// fallback when the authorization server didn't advertise any — the
// same resolution order as scopes but without an RS side to intersect.
func ResolveGrantTypes(manualOverride, asGrantTypes []string) []string {
	if len(manualOverride) > 0 {
		return manualOverride
	}
	if len(asGrantTypes) > 0 {
		return asGrantTypes
	}
	return []string{"authorization_code"}
}

func ResolveResponseTypes(manualOverride, asResponseTypes []string) []string {
	if len(manualOverride) > 0 {
		return manualOverride
	}
	if len(asResponseTypes) > 0 {
		return asResponseTypes
	}
	return []string{"code"}
}
