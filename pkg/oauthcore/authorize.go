package oauthcore

import (
	"net/url"
	"strings"
)

// AuthorizeRequest carries everything needed to build an authorization
// URL for the OAuth 2.1 authorization-code-with-PKCE flow.
type AuthorizeRequest struct {
	Provider      ProviderEndpoints
	Scopes        []string
	State         string
	CodeChallenge string
	Resources     []string // RFC 8707 resource indicators
}

// BuildAuthorizeURL constructs the authorization-server URL with
// response_type=code, the PKCE challenge, and optional resource
// indicators. Query parameter order is not significant to conformant
// servers; callers asserting exact output should parse the query string.
func BuildAuthorizeURL(req AuthorizeRequest) (string, error) {
	base, err := url.Parse(req.Provider.AuthorizeEndpoint)
	if err != nil {
		return "", err
	}

	q := base.Query()
	q.Set("response_type", "code")
	q.Set("client_id", req.Provider.ClientID)
	q.Set("redirect_uri", req.Provider.RedirectURI)
	q.Set("scope", strings.Join(req.Scopes, " "))
	q.Set("state", req.State)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", "S256")
	for _, r := range req.Resources {
		q.Add("resource", r)
	}
	base.RawQuery = q.Encode()

	return base.String(), nil
}
