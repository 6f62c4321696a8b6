package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/secretval"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// registrationClientNameTemplate is templated with the server name and local
// hostname, mirroring toolhive's oauth.ToolHiveMCPClientName convention
// generalized to a per-server identity.
const registrationClientNameTemplate = "MagicTunnel MCP Client (%s @ %s)"

// registrationRequest is the RFC 7591 POST body.
type registrationRequest struct {
	ClientName    string   `json:"client_name,omitempty"`
	RedirectURIs  []string `json:"redirect_uris"`
	Scope         string   `json:"scope,omitempty"`
	GrantTypes    []string `json:"grant_types,omitempty"`
	ResponseTypes []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`
	ClientURI     string   `json:"client_uri,omitempty"`
	LogoURI       string   `json:"logo_uri,omitempty"`
	TosURI        string   `json:"tos_uri,omitempty"`
	PolicyURI     string   `json:"policy_uri,omitempty"`
}

// scopeList tolerates either a space-joined string or a JSON array, the
// same RFC 7591 ambiguity toolhive's oauth.ScopeList resolves. Rather than
// probing by unmarshal-and-see-if-it-errors, this dispatches on the first
// non-whitespace byte: a JSON array always opens with '[', so anything
// else is the space-joined string form (or null/empty).
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*s = nil
		return nil
	}

	if trimmed[0] == '[' {
		var arr []string
		if err := json.Unmarshal(data, &arr); err != nil {
			return tunnelerr.NewSerdeError("invalid scope array", err)
		}
		*s = scopeList(arr)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return tunnelerr.NewSerdeError("invalid scope format", err)
	}
	*s = scopeList(strings.Fields(str))
	return nil
}

type registrationResponse struct {
	ClientID                string    `json:"client_id"`
	ClientSecret            string    `json:"client_secret,omitempty"`
	ClientSecretExpiresAt   int64     `json:"client_secret_expires_at,omitempty"`
	RegistrationAccessToken string    `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string    `json:"registration_client_uri,omitempty"`
	Scope                   scopeList `json:"scope,omitempty"`
}

// DynamicOAuthCredentials is the result of RFC 7591 registration, stored
// keyed by a stable server name.
type DynamicOAuthCredentials struct {
	ClientID              string
	ClientSecret          secretval.Secret
	RegistrationToken     string
	RegistrationClientURI string
	ExpiresAt             *time.Time
	ServerEndpoint        string
	GrantedScopes         []string
	Metadata              map[string]string
}

// StorageKey is the namespaced token-store key a DynamicOAuthCredentials
// is persisted under.
func StorageKey(serverName string) string {
	return "mcp_oauth_dynamic_" + serverName
}

// RegistrationOptions carries the optional branding fields RFC 7591
// allows and the caller-chosen redirect URI / server identity.
type RegistrationOptions struct {
	ServerName    string
	Hostname      string
	RedirectURI   string
	Scopes        []string
	GrantTypes    []string
	ResponseTypes []string
	ClientURI     string
	LogoURI       string
	TosURI        string
	PolicyURI     string
}

// RegisterClient performs RFC 7591 dynamic client registration against
// endpoint, POSTing a templated client_name, the resolved scopes/grant
// types/response types, and token_endpoint_auth_method=client_secret_basic.
func (c *Client) RegisterClient(ctx context.Context, endpoint string, opts RegistrationOptions) (*DynamicOAuthCredentials, error) {
	body := registrationRequest{
		ClientName:              fmt.Sprintf(registrationClientNameTemplate, opts.ServerName, opts.Hostname),
		RedirectURIs:            []string{opts.RedirectURI},
		Scope:                   strings.Join(opts.Scopes, " "),
		GrantTypes:              opts.GrantTypes,
		ResponseTypes:           opts.ResponseTypes,
		TokenEndpointAuthMethod: "client_secret_basic",
	}
	if opts.ClientURI != "" {
		body.ClientURI = opts.ClientURI
	}
	if opts.LogoURI != "" {
		body.LogoURI = opts.LogoURI
	}
	if opts.TosURI != "" {
		body.TosURI = opts.TosURI
	}
	if opts.PolicyURI != "" {
		body.PolicyURI = opts.PolicyURI
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, tunnelerr.NewConnectionError("dynamic client registration request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, tunnelerr.NewConnectionError("failed to read registration response", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, tunnelerr.NewAuthError("dynamic client registration rejected", nil)
	}

	var out registrationResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, tunnelerr.NewAuthError("malformed registration response", err)
	}
	if out.ClientID == "" {
		return nil, tunnelerr.NewAuthError("registration response missing client_id", nil)
	}

	creds := &DynamicOAuthCredentials{
		ClientID:              out.ClientID,
		ClientSecret:          secretval.New(out.ClientSecret),
		RegistrationToken:     out.RegistrationAccessToken,
		RegistrationClientURI: out.RegistrationClientURI,
		ServerEndpoint:        endpoint,
		GrantedScopes:         []string(out.Scope),
	}
	if out.ClientSecretExpiresAt > 0 {
		t := time.Unix(out.ClientSecretExpiresAt, 0)
		creds.ExpiresAt = &t
	}
	return creds, nil
}
