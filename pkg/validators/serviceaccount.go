package validators

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authconfig"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// ServiceAccountValidator checks a bearer credential against a
// provider-specific service account: GitHub/GitLab PATs are compared
// then probed live against the provider's /user endpoint; for Google
// service accounts the presented bearer is parsed as a service-account
// JSON document and its client_email must equal the account's configured
// ClientEmail, which then becomes the identity. The account's own
// configured credentials are not parsed, and Google matches are not
// probed live.
type ServiceAccountValidator struct {
	Enabled  bool
	Accounts map[string]authconfig.ServiceAccountEntry
	client   *http.Client
}

// NewServiceAccountValidator builds a validator over the given accounts.
func NewServiceAccountValidator(enabled bool, accounts map[string]authconfig.ServiceAccountEntry) *ServiceAccountValidator {
	return &ServiceAccountValidator{
		Enabled:  enabled,
		Accounts: accounts,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type googleServiceAccountJSON struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
}

// Validate matches the bearer token against every configured service
// account, returning the first match. Only GitHub/GitLab matches are
// verified live; Google and other types match without a network call.
func (v *ServiceAccountValidator) Validate(ctx context.Context, bearer string) (*authresult.Result, error) {
	if !v.Enabled {
		return nil, nil
	}
	if bearer == "" {
		return nil, nil
	}

	for _, acct := range v.Accounts {
		switch acct.Type {
		case "google":
			if acct.ClientEmail == "" {
				continue
			}
			var doc googleServiceAccountJSON
			if err := json.Unmarshal([]byte(bearer), &doc); err != nil {
				continue
			}
			if doc.ClientEmail != acct.ClientEmail {
				continue
			}
			return &authresult.Result{
				Kind:     authresult.KindServiceAccount,
				UserID:   doc.ClientEmail,
				Provider: "google",
				Metadata: map[string]string{"private_key_id": doc.PrivateKeyID},
			}, nil

		case "github", "gitlab":
			if !constantTimeEqual(bearer, acct.Token) {
				continue
			}
			login, err := probeProviderUser(ctx, v.client, acct.Type, bearer)
			if err != nil {
				return nil, tunnelerr.NewAuthError("service account token rejected by provider", err)
			}
			return &authresult.Result{
				Kind:     authresult.KindServiceAccount,
				UserID:   login,
				Provider: acct.Type,
			}, nil

		default:
			if constantTimeEqual(bearer, acct.Token) {
				return &authresult.Result{
					Kind:     authresult.KindServiceAccount,
					UserID:   acct.Name,
					Provider: acct.Type,
				}, nil
			}
		}
	}

	return nil, tunnelerr.NewAuthError("no matching service account", nil)
}

// probeProviderUser calls the provider's /user endpoint with bearer and
// maps the response to a login name. A non-2xx status is an Auth error.
func probeProviderUser(ctx context.Context, client *http.Client, providerType, bearer string) (string, error) {
	var url, authHeader string
	switch providerType {
	case "github":
		url = "https://api.github.com/user"
		authHeader = "token " + bearer
	case "gitlab":
		url = "https://gitlab.com/api/v4/user"
		authHeader = "Bearer " + bearer
	default:
		return "", tunnelerr.NewInternalError("unsupported service account provider type: "+providerType, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if providerType == "gitlab" {
		req.Header.Set("PRIVATE-TOKEN", bearer)
	} else {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", tunnelerr.NewAuthError("provider rejected service account credential", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", tunnelerr.NewAuthError("unexpected status from provider user endpoint", nil)
	}

	var body struct {
		Login    string `json:"login"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Login != "" {
		return body.Login, nil
	}
	return body.Username, nil
}
