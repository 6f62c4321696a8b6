package oauthcore

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthorizeURL_IncludesPKCEAndResources(t *testing.T) {
	req := AuthorizeRequest{
		Provider: ProviderEndpoints{
			ClientID:          "client-1",
			AuthorizeEndpoint: "https://example.com/authorize",
			RedirectURI:       "https://app.example.com/callback",
		},
		Scopes:        []string{"repo", "read:user"},
		State:         "state-1",
		CodeChallenge: "challenge-1",
		Resources:     []string{"https://api.example.com", "https://mcp.example.com"},
	}

	raw, err := BuildAuthorizeURL(req)
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, "repo read:user", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, []string{"https://api.example.com", "https://mcp.example.com"}, q["resource"])
}

func TestBuildAuthorizeURL_RejectsMalformedEndpoint(t *testing.T) {
	req := AuthorizeRequest{
		Provider: ProviderEndpoints{AuthorizeEndpoint: "://not-a-url"},
	}
	_, err := BuildAuthorizeURL(req)
	assert.Error(t, err)
}
