package oauthcore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ExchangeCode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "auth-code-1", r.FormValue("code"))
		assert.Equal(t, "verifier-1", r.FormValue("code_verifier"))
		assert.Equal(t, []string{"https://api.example.com"}, r.Form["resource"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-1","scope":"repo read:user"}`))
	}))
	defer srv.Close()

	c := NewClient()
	provider := ProviderEndpoints{ClientID: "client-1", ClientSecret: "secret-1", TokenEndpoint: srv.URL, RedirectURI: "https://example.com/cb"}

	tok, err := c.ExchangeCode(context.Background(), provider, "auth-code-1", "verifier-1", []string{"https://api.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.Equal(t, []string{"repo", "read:user"}, tok.Scopes())
}

func TestClient_ExchangeCode_NonSuccessStatusIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	c := NewClient()
	provider := ProviderEndpoints{ClientID: "client-1", TokenEndpoint: srv.URL, RedirectURI: "https://example.com/cb"}

	_, err := c.ExchangeCode(context.Background(), provider, "bad-code", "verifier-1", nil)
	assert.Error(t, err)
}

func TestClient_RefreshToken_SendsResourceIndicators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "rt-1", r.FormValue("refresh_token"))
		assert.Equal(t, []string{"https://api.example.com", "https://mcp.example.com"}, r.Form["resource"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	c := NewClient()
	provider := ProviderEndpoints{ClientID: "client-1", TokenEndpoint: srv.URL}

	tok, err := c.RefreshToken(context.Background(), provider, "rt-1", []string{"https://api.example.com", "https://mcp.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok.AccessToken)
}

func TestClient_RefreshToken_OmitsClientSecretWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Empty(t, r.FormValue("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-3","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	c := NewClient()
	provider := ProviderEndpoints{ClientID: "client-1", TokenEndpoint: srv.URL}

	_, err := c.RefreshToken(context.Background(), provider, "rt-1", nil)
	require.NoError(t, err)
}

func TestExpiresAt_ZeroOrNegativeIsNil(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, ExpiresAt(now, 0))
	assert.Nil(t, ExpiresAt(now, -1))
}

func TestExpiresAt_PositiveAddsDuration(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ExpiresAt(now, 3600)
	require.NotNil(t, got)
	assert.Equal(t, now.Add(time.Hour), *got)
}
