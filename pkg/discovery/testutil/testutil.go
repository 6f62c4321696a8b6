// Package testutil provides shared fixtures for tests across the
// authentication core: a fake OAuth authorization-server metadata
// endpoint, grounded on toolhive's pkg/runner remote_auth_test_helpers
// pattern of small httptest.Server factories returned alongside a
// cleanup-capable handle, generalized here into a standalone package so
// pkg/discovery, pkg/oauthcore, and pkg/refresh tests can all share one
// fixture instead of each hand-rolling its own mock server.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// FakeAuthServerOptions configures FakeAuthServer's served metadata.
type FakeAuthServerOptions struct {
	AuthorizationEndpoint string // defaults to "<server>/authorize"
	TokenEndpoint         string // defaults to "<server>/token"
	RegistrationEndpoint  string
	ScopesSupported       []string
	GrantTypesSupported   []string
	ResponseTypesSupported []string
}

// FakeAuthServer is an httptest.Server serving RFC 8414-shaped
// authorization-server metadata at whatever path the caller requests it
// on (tests typically point discovery's DiscoveryEndpoint straight at
// the server URL).
type FakeAuthServer struct {
	*httptest.Server
	Hits int
}

// NewFakeAuthServer starts a FakeAuthServer. t.Cleanup closes it
// automatically.
func NewFakeAuthServer(t *testing.T, opts FakeAuthServerOptions) *FakeAuthServer {
	t.Helper()
	fake := &FakeAuthServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fake.Hits++
		w.Header().Set("Content-Type", "application/json")

		authEndpoint := opts.AuthorizationEndpoint
		tokenEndpoint := opts.TokenEndpoint
		if authEndpoint == "" {
			authEndpoint = fake.Server.URL + "/authorize"
		}
		if tokenEndpoint == "" {
			tokenEndpoint = fake.Server.URL + "/token"
		}
		responseTypes := opts.ResponseTypesSupported
		if responseTypes == nil {
			responseTypes = []string{"code"}
		}
		grantTypes := opts.GrantTypesSupported
		if grantTypes == nil {
			grantTypes = []string{"authorization_code", "refresh_token"}
		}

		body := map[string]any{
			"authorization_endpoint":  authEndpoint,
			"token_endpoint":          tokenEndpoint,
			"response_types_supported": responseTypes,
			"grant_types_supported":   grantTypes,
			"scopes_supported":        opts.ScopesSupported,
		}
		if opts.RegistrationEndpoint != "" {
			body["registration_endpoint"] = opts.RegistrationEndpoint
		}
		_ = json.NewEncoder(w).Encode(body)
	})

	fake.Server = httptest.NewServer(mux)
	t.Cleanup(fake.Server.Close)
	return fake
}

// NewFakeTokenServer starts a server that answers every POST with a
// fixed access/refresh token pair, for oauthcore/refresh tests that
// exercise a token-endpoint round trip without caring about request
// shape.
func NewFakeTokenServer(t *testing.T, accessToken, refreshToken string, expiresIn int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_type":    "Bearer",
			"expires_in":    expiresIn,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}
