package validators

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// OAuthTokenValidator validates a bearer access token against a
// provider's userinfo endpoint: HTTP 2xx is treated as proof the token is
// still valid. It has no token-introspection path.
type OAuthTokenValidator struct {
	Enabled          bool
	Provider         string
	UserinfoEndpoint string
	client           *http.Client
}

// NewOAuthTokenValidator builds a validator that probes userinfoEndpoint.
func NewOAuthTokenValidator(enabled bool, provider, userinfoEndpoint string) *OAuthTokenValidator {
	return &OAuthTokenValidator{
		Enabled:          enabled,
		Provider:         provider,
		UserinfoEndpoint: userinfoEndpoint,
		client:           &http.Client{Timeout: 30 * time.Second},
	}
}

// Validate probes the userinfo endpoint with bearer and maps a 2xx
// response's subject/email claim to the result's UserID.
func (v *OAuthTokenValidator) Validate(ctx context.Context, bearer string) (*authresult.Result, error) {
	if !v.Enabled {
		return nil, nil
	}
	if bearer == "" {
		return nil, tunnelerr.NewAuthError("empty oauth access token", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.UserinfoEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, tunnelerr.NewConnectionError("userinfo probe failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, tunnelerr.NewAuthError("userinfo probe rejected token", nil)
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&claims)

	userID := claims.Sub
	if userID == "" {
		userID = claims.Email
	}

	return &authresult.Result{
		Kind:        authresult.KindOAuth,
		UserID:      userID,
		Provider:    v.Provider,
		AccessToken: bearer,
	}, nil
}
