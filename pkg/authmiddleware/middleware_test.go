package authmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

func alwaysNone(*http.Request) (*authresult.Result, error) { return nil, nil }

func alwaysResult(kind authresult.Kind) Validator {
	return ValidatorFunc(func(*http.Request) (*authresult.Result, error) {
		return &authresult.Result{Kind: kind, UserID: "u"}, nil
	})
}

func alwaysErr(*http.Request) (*authresult.Result, error) {
	return nil, tunnelerr.NewAuthError("boom", nil)
}

func TestChain_FirstSomeWins(t *testing.T) {
	chain := NewChain(
		ValidatorFunc(alwaysNone),
		alwaysResult(authresult.KindOAuth),
		alwaysResult(authresult.KindJWT),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	result, err := chain.Authenticate(req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, authresult.KindOAuth, result.Kind)
}

func TestChain_AllNoneIsUnauthenticatedNotError(t *testing.T) {
	chain := NewChain(ValidatorFunc(alwaysNone), ValidatorFunc(alwaysNone))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	result, err := chain.Authenticate(req)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestChain_FirstErrorSurfaces(t *testing.T) {
	chain := NewChain(ValidatorFunc(alwaysErr), alwaysResult(authresult.KindJWT))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := chain.Authenticate(req)
	require.Error(t, err)
}

func TestBearerAdapter_ExtractsToken(t *testing.T) {
	var seenBearer string
	adapter := BearerAdapter(func(_ context.Context, bearer string) (*authresult.Result, error) {
		seenBearer = bearer
		return &authresult.Result{Kind: authresult.KindOAuth}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")

	result, err := adapter.Validate(req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "abc123", seenBearer)
}

func TestBearerAdapter_NonBearerIsNone(t *testing.T) {
	adapter := BearerAdapter(func(context.Context, string) (*authresult.Result, error) {
		t.Fatal("should not be called")
		return nil, nil
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic xyz")
	result, err := adapter.Validate(req)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestChain_Middleware_AttachesResult(t *testing.T) {
	chain := NewChain(alwaysResult(authresult.KindAPIKey))
	var captured *authresult.Result
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured, _ = ResultFromContext(r.Context())
	})

	handler := chain.Middleware(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, captured)
	assert.Equal(t, authresult.KindAPIKey, captured.Kind)
}
