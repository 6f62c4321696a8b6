package discovery

import (
	"context"
	"time"

	"github.com/pkg/browser"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnellog"
)

// ServerConfig is the operator configuration for one discoverable remote
// MCP server.
type ServerConfig struct {
	Name                  string
	BaseURL               string
	DiscoveryEndpoint     string // optional override for the well-known AS URL
	FetchProtectedResource bool
	ManualMetadata        *ManualOAuthMetadata
	RequiredScopesOverride []string
	RedirectURI           string
	Hostname              string
	ClientURIBranding     RegistrationOptions
}

// Service ties the metadata client, cache, and callback registry
// together into the discover_and_connect / handle_oauth_callback
// operations the core exposes.
type Service struct {
	client   *Client
	cache    *Cache
	callback *CallbackRegistry
	audit    *tunnellog.Audit
}

// NewService builds a discovery Service.
func NewService() *Service {
	return &Service{
		client:   NewClient(),
		cache:    NewCache(),
		callback: NewCallbackRegistry(),
		audit:    tunnellog.NewAudit(),
	}
}

// Discover resolves the DiscoveredOAuthConfig for cfg, serving from the
// per-server cache when the 1-hour TTL window hasn't elapsed — the
// second call within the window issues no authorization-server metadata
// network request at all.
func (s *Service) Discover(ctx context.Context, cfg ServerConfig) (*DiscoveredOAuthConfig, error) {
	key := Key(cfg.BaseURL)
	if cached, ok := s.cache.Get(key); ok {
		return &cached, nil
	}

	s.audit.Event("discovery.attempt", "server", cfg.Name, "base_url", cfg.BaseURL)

	asMeta, err := s.client.FetchAuthServerMetadata(ctx, cfg.BaseURL, cfg.DiscoveryEndpoint)
	if err != nil {
		if cfg.ManualMetadata != nil {
			tunnellog.Warnf("discovery failed for %s, falling back to manual metadata: %v", cfg.Name, err)
			manual := fromManual(*cfg.ManualMetadata)
			asMeta = &manual
		} else {
			s.audit.Event("discovery.failure", "server", cfg.Name, "error", err.Error())
			return nil, err
		}
	}

	var rsMeta *ProtectedResourceMetadata
	if cfg.FetchProtectedResource {
		rsMeta, err = s.client.FetchProtectedResourceMetadata(ctx, cfg.BaseURL)
		if err != nil {
			tunnellog.Debugf("protected resource metadata unavailable for %s: %v", cfg.Name, err)
			rsMeta = nil
		}
	}

	var rsScopes []string
	if rsMeta != nil {
		rsScopes = rsMeta.ScopesSupported
	}

	resolvedScopes := ResolveScopes(cfg.RequiredScopesOverride, asMeta.ScopesSupported, rsScopes)
	if len(cfg.RequiredScopesOverride) > 0 && !IsSubset(cfg.RequiredScopesOverride, asMeta.ScopesSupported) {
		tunnellog.Warnf("manual scope override for %s is not a subset of discovered scopes", cfg.Name)
	}

	config := DiscoveredOAuthConfig{
		AuthServer:            *asMeta,
		ProtectedResource:     rsMeta,
		ResolvedScopes:        resolvedScopes,
		ResolvedGrantTypes:    ResolveGrantTypes(nil, asMeta.GrantTypesSupported),
		ResolvedResponseTypes: ResolveResponseTypes(nil, asMeta.ResponseTypesSupported),
		DiscoveredAt:          time.Now(),
	}

	s.cache.Put(key, config)
	s.audit.Event("discovery.success", "server", cfg.Name)
	return &config, nil
}

// ClearCache invalidates the cached discovery result for baseURL,
// forcing the next Discover call to re-fetch.
func (s *Service) ClearCache(baseURL string) {
	s.cache.Clear(Key(baseURL))
}

// RegisterDynamically performs RFC 7591 registration against the
// discovered config's registration endpoint, if any.
func (s *Service) RegisterDynamically(ctx context.Context, cfg ServerConfig, discovered *DiscoveredOAuthConfig) (*DynamicOAuthCredentials, error) {
	if discovered.AuthServer.RegistrationEndpoint == "" {
		return nil, tunnelerr.NewConfigError("server has no registration_endpoint to dynamically register against", nil)
	}

	opts := RegistrationOptions{
		ServerName:    cfg.Name,
		Hostname:      cfg.Hostname,
		RedirectURI:   cfg.RedirectURI,
		Scopes:        discovered.ResolvedScopes,
		GrantTypes:    discovered.ResolvedGrantTypes,
		ResponseTypes: discovered.ResolvedResponseTypes,
		ClientURI:     cfg.ClientURIBranding.ClientURI,
		LogoURI:       cfg.ClientURIBranding.LogoURI,
		TosURI:        cfg.ClientURIBranding.TosURI,
		PolicyURI:     cfg.ClientURIBranding.PolicyURI,
	}

	s.audit.Event("registration.attempt", "server", cfg.Name)
	creds, err := s.client.RegisterClient(ctx, discovered.AuthServer.RegistrationEndpoint, opts)
	if err != nil {
		s.audit.Event("registration.failure", "server", cfg.Name, "error", err.Error())
		return nil, err
	}
	s.audit.Event("registration.success", "server", cfg.Name, "client_id", creds.ClientID)
	return creds, nil
}

// AuthorizeDiscoveredServer opens the system browser to authorizeURL and
// blocks on the out-of-band callback channel registered under
// serverName. Callers must have already built authorizeURL (PKCE
// challenge, state, etc. are the OAuth core's concern, not discovery's).
func (s *Service) AuthorizeDiscoveredServer(ctx context.Context, serverName, authorizeURL string) (*CallbackResult, error) {
	s.callback.Register(serverName)
	s.audit.Event("authorization.start", "server", serverName)

	if err := browser.OpenURL(authorizeURL); err != nil {
		tunnellog.Warnf("failed to open system browser for %s, user must navigate manually: %v", serverName, err)
	}

	result, err := s.callback.AwaitCallback(ctx, serverName)
	if err != nil {
		s.audit.Event("authorization.failure", "server", serverName, "error", err.Error())
		return nil, err
	}
	if result.Error != "" {
		s.audit.Event("authorization.failure", "server", serverName, "error", result.Error)
		return result, tunnelerr.NewAuthError("authorization denied: "+result.Error+" "+result.ErrorDescription, nil)
	}
	s.audit.Event("authorization.success", "server", serverName)
	return result, nil
}

// HandleOAuthCallback delivers a callback received by the transport's
// /auth/callback/<server_name> endpoint to the waiting flow. Idempotent
// per spec.md §8: a delivery after the first (no waiter registered)
// returns an error without affecting any state.
func (s *Service) HandleOAuthCallback(serverName, code, state, errCode, errDesc string) error {
	return s.callback.Deliver(serverName, CallbackResult{
		Code:             code,
		State:            state,
		Error:            errCode,
		ErrorDescription: errDesc,
	})
}
