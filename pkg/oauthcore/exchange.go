package oauthcore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// defaultTimeout is applied to every outbound OAuth network step.
const defaultTimeout = 30 * time.Second

const maxTokenResponseBytes = 1 << 20 // 1MB

// TokenResponse mirrors the JSON shape returned by a token endpoint,
// independent of oauth2.Token so callers never need to import
// golang.org/x/oauth2 themselves.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Scopes splits the space-joined scope string into a slice.
func (t TokenResponse) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

func fromOAuth2Token(tok *oauth2.Token) *TokenResponse {
	out := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}

func (p ProviderEndpoints) asOAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthorizeEndpoint,
			TokenURL: p.TokenEndpoint,
		},
	}
}

// Client performs the HTTP legs of the OAuth 2.1 flow.
type Client struct {
	http *http.Client
}

// NewClient builds an oauthcore.Client with the spec-mandated 30s
// per-step timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: defaultTimeout}}
}

// ExchangeCode trades an authorization code for tokens, delegating the
// wire exchange to golang.org/x/oauth2 so the PKCE verifier and resource
// indicators ride the library's own AuthCodeOption mechanism instead of
// a hand-assembled form body.
func (c *Client) ExchangeCode(ctx context.Context, provider ProviderEndpoints, code, codeVerifier string, resources []string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	cfg := provider.asOAuth2Config()

	opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(codeVerifier)}
	for _, r := range resources {
		opts = append(opts, oauth2.SetAuthURLParam("resource", r))
	}

	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, tunnelerr.NewAuthError("authorization code exchange failed", err)
	}
	return fromOAuth2Token(tok), nil
}

// RefreshToken requests a new access token using a refresh token. RFC
// 8707 resource indicators must ride the request body directly: the
// oauth2.Config.TokenSource refresh path does not expose a hook for
// extra form parameters, so this leg stays a plain form-encoded POST
// rather than going through the library.
func (c *Client) RefreshToken(ctx context.Context, provider ProviderEndpoints, refreshToken string, resources []string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {provider.ClientID},
	}
	if provider.ClientSecret != "" {
		form.Set("client_secret", provider.ClientSecret)
	}
	for _, r := range resources {
		form.Add("resource", r)
	}
	return c.post(ctx, provider.TokenEndpoint, form)
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, tunnelerr.NewConnectionError("oauth token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, tunnelerr.NewConnectionError("failed to read oauth token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The status and body are useful for logs but must not leak to
		// end users beyond a generic auth failure.
		return nil, tunnelerr.NewAuthError("token endpoint returned status "+strconv.Itoa(resp.StatusCode), nil)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, tunnelerr.NewAuthError("malformed token response", err)
	}
	return &tr, nil
}

// ExpiresAt converts a relative expires_in into an absolute time anchored
// at now.
func ExpiresAt(now time.Time, expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(expiresIn) * time.Second)
	return &t
}
