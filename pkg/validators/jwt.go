package validators

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnellog"
)

// JWTValidator verifies bearer JWTs against a JWKS endpoint and maps
// claims to a uniform result.
type JWTValidator struct {
	Enabled  bool
	Issuer   string
	Audience string
	jwksURL  string
	cache    *jwk.Cache
}

// NewJWTValidator registers jwksURL with an auto-refreshing JWKS cache.
func NewJWTValidator(ctx context.Context, enabled bool, issuer, audience, jwksURL string) (*JWTValidator, error) {
	if !enabled {
		return &JWTValidator{Enabled: false}, nil
	}
	if jwksURL == "" {
		return nil, tunnelerr.NewConfigError("jwt validator requires a jwks_url", nil)
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL); err != nil {
		return nil, tunnelerr.NewConfigError("failed to register jwks url", err)
	}

	return &JWTValidator{Enabled: true, Issuer: issuer, Audience: audience, jwksURL: jwksURL, cache: cache}, nil
}

func (v *JWTValidator) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token header missing kid")
		}
		keySet, err := v.cache.Get(ctx, v.jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch jwks: %w", err)
		}
		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key id %s not found in jwks", kid)
		}
		var raw interface{}
		if err := key.Raw(&raw); err != nil {
			return nil, fmt.Errorf("failed to materialize jwk: %w", err)
		}
		return raw, nil
	}
}

// Validate extracts and verifies a bearer JWT from the request.
func (v *JWTValidator) Validate(r *http.Request) (*authresult.Result, error) {
	if !v.Enabled {
		return nil, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return nil, nil
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(raw, v.keyFunc(r.Context()))
	if err != nil || !token.Valid {
		tunnellog.Debugf("jwt validation failed: %v", err)
		return nil, tunnelerr.NewAuthError("invalid jwt", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, tunnelerr.NewAuthError("jwt claims in unexpected shape", nil)
	}

	if v.Issuer != "" {
		if iss, _ := claims.GetIssuer(); iss != v.Issuer {
			return nil, tunnelerr.NewAuthError("unexpected jwt issuer", nil)
		}
	}
	if v.Audience != "" {
		auds, _ := claims.GetAudience()
		if !contains(auds, v.Audience) {
			return nil, tunnelerr.NewAuthError("unexpected jwt audience", nil)
		}
	}

	sub, _ := claims.GetSubject()
	scopes := splitScope(stringClaim(claims, "scope"))
	permissions := splitScope(stringClaim(claims, "permissions"))

	return &authresult.Result{
		Kind:        authresult.KindJWT,
		UserID:      sub,
		Scopes:      scopes,
		Permissions: permissions,
		AccessToken: raw,
	}, nil
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

func splitScope(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
