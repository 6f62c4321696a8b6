package oauthcore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// defaultPollInterval and defaultMaxAttempts implement RFC 8628's
// suggested 5-second interval bounded to roughly 30 minutes of polling.
const (
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 360
	slowDownIncrement   = 5 * time.Second
)

// DeviceAuthorizationResponse is the authorization server's response to
// starting a device flow.
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

// DeviceTokenResponse is the successful token-endpoint response for the
// device-code grant.
type DeviceTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

type deviceCodeErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// PollStatus tags a TokenPollResult's outcome.
type PollStatus string

const (
	PollSuccess PollStatus = "success"
	PollPending PollStatus = "pending"
	PollDenied  PollStatus = "denied"
	PollExpired PollStatus = "expired"
	PollError   PollStatus = "error"
)

// TokenPollResult is the outcome of a single poll. SlowDown is not a
// separate status: it is folded into Pending with SlowDown=true, since
// it adjusts the caller's interval but never changes terminal state.
type TokenPollResult struct {
	Status   PollStatus
	Token    *DeviceTokenResponse
	SlowDown bool
	ErrorMsg string
}

// DeviceCodeFlow drives RFC 8628 device authorization against one
// provider.
type DeviceCodeFlow struct {
	Provider ProviderEndpoints
	http     *http.Client
}

// NewDeviceCodeFlow builds a flow for the given provider, requiring its
// device-authorization and token endpoints to be configured.
func NewDeviceCodeFlow(provider ProviderEndpoints) (*DeviceCodeFlow, error) {
	if provider.DeviceCodeEndpoint == "" {
		return nil, tunnelerr.NewConfigError("device authorization endpoint is required for device code flow", nil)
	}
	if provider.TokenEndpoint == "" {
		return nil, tunnelerr.NewConfigError("token endpoint is required for device code flow", nil)
	}
	return &DeviceCodeFlow{Provider: provider, http: &http.Client{Timeout: defaultTimeout}}, nil
}

// Initiate starts the flow, returning the user-facing verification
// details.
func (f *DeviceCodeFlow) Initiate(ctx context.Context, scopes []string) (*DeviceAuthorizationResponse, error) {
	form := url.Values{
		"client_id": {f.Provider.ClientID},
		"scope":     {strings.Join(scopes, " ")},
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Provider.DeviceCodeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, tunnelerr.NewConnectionError("device authorization request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, tunnelerr.NewAuthError("device authorization request failed", nil)
	}

	var out DeviceAuthorizationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, tunnelerr.NewAuthError("malformed device authorization response", err)
	}
	return &out, nil
}

// Poll issues a single poll against the token endpoint and classifies
// the response per RFC 8628's error taxonomy.
func (f *DeviceCodeFlow) Poll(ctx context.Context, deviceCode string) (TokenPollResult, error) {
	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
		"client_id":   {f.Provider.ClientID},
	}
	if f.Provider.ClientSecret != "" {
		form.Set("client_secret", f.Provider.ClientSecret)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Provider.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenPollResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return TokenPollResult{}, tunnelerr.NewConnectionError("device token poll failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return TokenPollResult{}, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var tok DeviceTokenResponse
		if err := json.Unmarshal(body, &tok); err != nil {
			return TokenPollResult{}, tunnelerr.NewAuthError("malformed device token response", err)
		}
		return TokenPollResult{Status: PollSuccess, Token: &tok}, nil
	}

	if resp.StatusCode == http.StatusBadRequest {
		var errResp deviceCodeErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return TokenPollResult{Status: PollError, ErrorMsg: "failed to parse error response"}, nil
		}
		switch errResp.Error {
		case "authorization_pending":
			return TokenPollResult{Status: PollPending}, nil
		case "slow_down":
			return TokenPollResult{Status: PollPending, SlowDown: true}, nil
		case "access_denied":
			return TokenPollResult{Status: PollDenied}, nil
		case "expired_token":
			return TokenPollResult{Status: PollExpired}, nil
		default:
			return TokenPollResult{Status: PollError, ErrorMsg: errResp.Error + ": " + errResp.ErrorDescription}, nil
		}
	}

	return TokenPollResult{Status: PollError, ErrorMsg: "unexpected http status"}, nil
}

// Complete drives Poll in a loop until a terminal state or the attempt
// cap is reached, honoring server-advertised intervals and slow_down
// backoff.
func (f *DeviceCodeFlow) Complete(ctx context.Context, deviceCode string, serverInterval int64) (*DeviceTokenResponse, error) {
	interval := defaultPollInterval
	if serverInterval > 0 {
		interval = time.Duration(serverInterval) * time.Second
	}

	for attempt := 0; attempt < defaultMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}

		result, err := f.Poll(ctx, deviceCode)
		if err != nil {
			return nil, err
		}

		switch result.Status {
		case PollSuccess:
			return result.Token, nil
		case PollPending:
			if result.SlowDown {
				interval += slowDownIncrement
			}
			continue
		case PollDenied:
			return nil, tunnelerr.NewAuthError("user denied device authorization", nil)
		case PollExpired:
			return nil, tunnelerr.NewAuthError("device code expired", nil)
		default:
			return nil, tunnelerr.NewAuthError("device code polling error: "+result.ErrorMsg, nil)
		}
	}

	return nil, tunnelerr.NewAuthError("device code flow timed out after maximum polling attempts", nil)
}
