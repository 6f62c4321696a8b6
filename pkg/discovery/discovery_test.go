package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthServerHandler(t *testing.T, meta AuthServerMetadata) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(meta))
	}
}

func TestDiscover_CachesWithinTTL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		meta := AuthServerMetadata{
			AuthorizationEndpoint: "https://example.com/authorize",
			TokenEndpoint:         "https://example.com/token",
			ResponseTypesSupported: []string{"code"},
			GrantTypesSupported:   []string{"authorization_code", "refresh_token"},
			ScopesSupported:       []string{"mcp:read", "mcp:write", "mcp:admin"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(meta)
	}))
	defer srv.Close()

	svc := NewService()
	cfg := ServerConfig{
		Name:                   "example",
		BaseURL:                srv.URL + "/mcp",
		DiscoveryEndpoint:      srv.URL,
		RequiredScopesOverride: []string{"mcp:read", "mcp:write"},
	}

	result, err := svc.Discover(context.Background(), cfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mcp:read", "mcp:write"}, result.ResolvedScopes)
	assert.ElementsMatch(t, []string{"authorization_code", "refresh_token"}, result.ResolvedGrantTypes)
	assert.Equal(t, []string{"code"}, result.ResolvedResponseTypes)
	assert.Equal(t, 1, hits)

	_, err = svc.Discover(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "second discovery within the TTL window must not hit the network")
}

func TestResolveScopes_Priority(t *testing.T) {
	assert.Equal(t, []string{"override"}, ResolveScopes([]string{"override"}, []string{"a"}, []string{"b"}))
	assert.Equal(t, []string{"a"}, ResolveScopes(nil, []string{"a", "b"}, []string{"a"}))
	assert.Equal(t, []string{"rs"}, ResolveScopes(nil, nil, []string{"rs"}))
	assert.Equal(t, []string{"as"}, ResolveScopes(nil, []string{"as"}, nil))
	assert.Equal(t, defaultScopes, ResolveScopes(nil, nil, nil))
}

func TestCallbackRegistry_IdempotentAfterFirstDelivery(t *testing.T) {
	reg := NewCallbackRegistry()
	reg.Register("srv1")

	err := reg.Deliver("srv1", CallbackResult{Code: "abc", State: "st"})
	require.NoError(t, err)

	result, err := reg.AwaitCallback(context.Background(), "srv1")
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Code)

	err = reg.Deliver("srv1", CallbackResult{Code: "second"})
	require.Error(t, err, "second delivery with no waiter must fail without affecting state")
}

func TestCallbackRegistry_TimesOut(t *testing.T) {
	reg := NewCallbackRegistry()
	reg.Register("srv-timeout")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := reg.AwaitCallback(ctx, "srv-timeout")
	require.Error(t, err)
}

func TestFetchAuthServerMetadata_MissingAuthorizationEndpoint(t *testing.T) {
	srv := httptest.NewServer(newAuthServerHandler(t, AuthServerMetadata{
		ResponseTypesSupported: []string{"code"},
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.FetchAuthServerMetadata(context.Background(), srv.URL, srv.URL)
	require.Error(t, err)
}

func TestConfigHash_Stable(t *testing.T) {
	cfg := DiscoveredOAuthConfig{
		AuthServer: AuthServerMetadata{
			AuthorizationEndpoint: "https://a/authorize",
			TokenEndpoint:         "https://a/token",
		},
		ResolvedScopes: []string{"mcp:read"},
	}
	assert.Equal(t, ConfigHash(cfg), ConfigHash(cfg))
}
