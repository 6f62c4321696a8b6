package oauthcore

import (
	"net/url"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// ProviderEndpoints is the subset of authconfig.ProviderConfig the OAuth
// core needs to drive a flow, kept separate so this package does not
// import authconfig (which in turn would create a dependency cycle once
// authconfig needs to reference discovered endpoints).
type ProviderEndpoints struct {
	Name               string
	ClientID           string
	ClientSecret       string
	AuthorizeEndpoint  string
	TokenEndpoint      string
	UserinfoEndpoint   string
	DeviceCodeEndpoint string
	RedirectURI        string
}

// Validate checks that required endpoints are present and well-formed.
func (p ProviderEndpoints) Validate() error {
	if p.ClientID == "" {
		return tunnelerr.NewConfigError("oauth provider is missing client_id", nil)
	}
	if p.AuthorizeEndpoint == "" {
		return tunnelerr.NewConfigError("oauth provider is missing authorize endpoint", nil)
	}
	if p.TokenEndpoint == "" {
		return tunnelerr.NewConfigError("oauth provider is missing token endpoint", nil)
	}
	for _, raw := range []string{p.AuthorizeEndpoint, p.TokenEndpoint, p.UserinfoEndpoint, p.DeviceCodeEndpoint, p.RedirectURI} {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return tunnelerr.NewConfigError("oauth provider has a malformed endpoint: "+raw, err)
		}
	}
	return nil
}
