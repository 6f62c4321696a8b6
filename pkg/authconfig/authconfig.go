// Package authconfig models the operator-supplied authentication
// configuration: which providers exist, which API keys and service
// accounts are recognized, and which AuthMethod governs each server,
// capability, and tool. Loading the bytes that produce this struct (YAML,
// env, flags) is out of scope; this package only validates and resolves
// an already-decoded MultiLevelAuthConfig.
package authconfig

import (
	"net/url"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// AuthMethodKind tags which AuthMethod variant is populated.
type AuthMethodKind string

const (
	MethodOAuth          AuthMethodKind = "oauth"
	MethodDeviceCode      AuthMethodKind = "device_code"
	MethodAPIKey          AuthMethodKind = "api_key"
	MethodServiceAccount  AuthMethodKind = "service_account"
)

// AuthMethod is the tagged union over the four credential strategies a
// tool, capability, or server can declare.
type AuthMethod struct {
	Kind AuthMethodKind

	// Populated when Kind == MethodOAuth or MethodDeviceCode.
	Provider string
	Scopes   []string

	// Populated when Kind == MethodAPIKey.
	KeyRef string

	// Populated when Kind == MethodServiceAccount.
	AccountRef string
}

// OAuthAuthMethod builds the OAuth{provider,scopes} variant.
func OAuthAuthMethod(provider string, scopes []string) AuthMethod {
	return AuthMethod{Kind: MethodOAuth, Provider: provider, Scopes: scopes}
}

// DeviceCodeAuthMethod builds the DeviceCode{provider,scopes} variant.
func DeviceCodeAuthMethod(provider string, scopes []string) AuthMethod {
	return AuthMethod{Kind: MethodDeviceCode, Provider: provider, Scopes: scopes}
}

// APIKeyAuthMethod builds the ApiKey{key_ref} variant.
func APIKeyAuthMethod(keyRef string) AuthMethod {
	return AuthMethod{Kind: MethodAPIKey, KeyRef: keyRef}
}

// ServiceAccountAuthMethod builds the ServiceAccount{account_ref} variant.
func ServiceAccountAuthMethod(accountRef string) AuthMethod {
	return AuthMethod{Kind: MethodServiceAccount, AccountRef: accountRef}
}

// ProviderConfig describes one named OAuth-family identity authority.
type ProviderConfig struct {
	Name                string
	ClientID            string
	ClientSecret        string
	AuthorizeEndpoint   string
	TokenEndpoint       string
	UserinfoEndpoint    string
	DeviceCodeEndpoint  string
	RedirectURI         string
	OAuthEnabled        bool
	DeviceCodeEnabled   bool
	DefaultScopes       []string
}

// APIKeyEntry is one statically configured API key.
type APIKeyEntry struct {
	Name        string
	Key         string
	Permissions []string
	HeaderName  string
	// HeaderFormat is a template like "Bearer {key}"; the literal
	// substring "{key}" marks where the token value goes.
	HeaderFormat string
}

// ServiceAccountEntry is one statically configured service-account
// credential, either a PAT-style provider token or a parsed Google
// service-account JSON blob (ClientEmail non-empty signals the latter).
type ServiceAccountEntry struct {
	Name         string
	Type         string // "github", "gitlab", "google", or unrecognized
	Token        string
	ClientEmail  string
	PrivateKeyID string
}

// MultiLevelAuthConfig is the full three-level resolution configuration.
type MultiLevelAuthConfig struct {
	Enabled       bool
	ServerLevel   *AuthMethod
	Capabilities  map[string]AuthMethod
	Tools         map[string]AuthMethod
	Providers     map[string]ProviderConfig
	APIKeys       map[string]APIKeyEntry
	ServiceAccounts map[string]ServiceAccountEntry
}

// Validate runs the two-pass check spec'd for C4: first every entity has
// its required non-empty fields, then every AuthMethod reference (at any
// of the three levels) names an entity that actually exists.
func (c *MultiLevelAuthConfig) Validate() error {
	if err := c.validateEntities(); err != nil {
		return err
	}
	return c.validateReferences()
}

func (c *MultiLevelAuthConfig) validateEntities() error {
	for name, p := range c.Providers {
		if p.ClientID == "" || p.ClientSecret == "" {
			return tunnelerr.NewConfigError("provider \""+name+"\" is missing client_id or client_secret", nil)
		}
		if !p.OAuthEnabled && !p.DeviceCodeEnabled {
			return tunnelerr.NewConfigError("provider \""+name+"\" must enable at least one of oauth or device_code", nil)
		}
		for _, raw := range []string{p.AuthorizeEndpoint, p.TokenEndpoint, p.UserinfoEndpoint, p.DeviceCodeEndpoint, p.RedirectURI} {
			if raw == "" {
				continue
			}
			if _, err := url.ParseRequestURI(raw); err != nil {
				return tunnelerr.NewConfigError("provider \""+name+"\" has a malformed endpoint URL: "+raw, err)
			}
		}
	}

	for name, k := range c.APIKeys {
		if k.Key == "" {
			return tunnelerr.NewConfigError("api key \""+name+"\" has an empty key value", nil)
		}
		if k.HeaderFormat == "" {
			return tunnelerr.NewConfigError("api key \""+name+"\" is missing a header_format template", nil)
		}
	}

	for name, sa := range c.ServiceAccounts {
		if sa.Token == "" && sa.ClientEmail == "" {
			return tunnelerr.NewConfigError("service account \""+name+"\" has neither a token nor a client_email", nil)
		}
	}

	return nil
}

func (c *MultiLevelAuthConfig) validateReferences() error {
	check := func(m AuthMethod) error {
		switch m.Kind {
		case MethodOAuth, MethodDeviceCode:
			if _, ok := c.Providers[m.Provider]; !ok {
				return tunnelerr.NewConfigError("auth method references unknown provider \""+m.Provider+"\"", nil)
			}
		case MethodAPIKey:
			if _, ok := c.APIKeys[m.KeyRef]; !ok {
				return tunnelerr.NewConfigError("auth method references unknown api key \""+m.KeyRef+"\"", nil)
			}
		case MethodServiceAccount:
			if _, ok := c.ServiceAccounts[m.AccountRef]; !ok {
				return tunnelerr.NewConfigError("auth method references unknown service account \""+m.AccountRef+"\"", nil)
			}
		default:
			return tunnelerr.NewConfigError("auth method has an unrecognized kind", nil)
		}
		return nil
	}

	if c.ServerLevel != nil {
		if err := check(*c.ServerLevel); err != nil {
			return err
		}
	}
	for _, m := range c.Capabilities {
		if err := check(m); err != nil {
			return err
		}
	}
	for _, m := range c.Tools {
		if err := check(m); err != nil {
			return err
		}
	}
	return nil
}
