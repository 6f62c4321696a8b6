package validators

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
)

func TestDeviceCodeValidator_AuthorizationHeader(t *testing.T) {
	v := NewDeviceCodeValidator(true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "DeviceCode github:repo,read:user")

	result, err := v.Validate(req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, authresult.KindDeviceCode, result.Kind)
	assert.Equal(t, "github", result.Provider)
	assert.True(t, result.Pending)
	assert.ElementsMatch(t, []string{"repo", "read:user"}, result.Scopes)
}

func TestDeviceCodeValidator_XHeaders(t *testing.T) {
	v := NewDeviceCodeValidator(true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Device-Code-Provider", "github")
	req.Header.Set("X-Device-Code-Scopes", "repo,user")

	result, err := v.Validate(req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "github", result.Provider)
}

func TestDeviceCodeValidator_NoMatchIsNotApplicable(t *testing.T) {
	v := NewDeviceCodeValidator(true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	result, err := v.Validate(req)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDeviceCodeValidator_DisabledReturnsNone(t *testing.T) {
	v := NewDeviceCodeValidator(false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Device-Code-Provider", "github")

	result, err := v.Validate(req)
	require.NoError(t, err)
	assert.Nil(t, result)
}
