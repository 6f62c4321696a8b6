package validators

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authconfig"
)

func TestAPIKeyValidator_HappyPath(t *testing.T) {
	v := NewAPIKeyValidator(true, map[string]authconfig.APIKeyEntry{
		"Admin": {
			Name:         "Admin",
			Key:          "admin_key_123456789",
			Permissions:  []string{"read", "write", "admin"},
			HeaderName:   "Authorization",
			HeaderFormat: "Bearer {key}",
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer admin_key_123456789")

	result, err := v.Validate(req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Admin", result.UserID)
	assert.Contains(t, result.Permissions, "admin")
}

func TestAPIKeyValidator_NoMatchReturnsAuthError(t *testing.T) {
	v := NewAPIKeyValidator(true, map[string]authconfig.APIKeyEntry{
		"Admin": {Name: "Admin", Key: "admin_key_123456789", HeaderName: "Authorization", HeaderFormat: "Bearer {key}"},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")

	result, err := v.Validate(req)
	assert.Nil(t, result)
	assert.Error(t, err)
}

func TestAPIKeyValidator_DisabledReturnsNone(t *testing.T) {
	v := NewAPIKeyValidator(false, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	result, err := v.Validate(req)
	assert.Nil(t, result)
	assert.NoError(t, err)
}

func TestExtractFromFormat(t *testing.T) {
	t.Parallel()
	token, ok := extractFromFormat("Bearer abc123", "Bearer {key}")
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)

	_, ok = extractFromFormat("abc123", "Bearer {key}")
	assert.False(t, ok)
}
