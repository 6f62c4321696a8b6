package oauthcore

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePKCEParams_VerifierLengthAndChallenge(t *testing.T) {
	params, err := GeneratePKCEParams()
	require.NoError(t, err)
	assert.Len(t, params.CodeVerifier, 128)

	sum := sha256.Sum256([]byte(params.CodeVerifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	assert.Equal(t, want, params.CodeChallenge)
}

func TestGeneratePKCEParams_UsesOnlyUnreservedAlphabet(t *testing.T) {
	params, err := GeneratePKCEParams()
	require.NoError(t, err)
	for _, r := range params.CodeVerifier {
		assert.Contains(t, pkceAlphabet, string(r))
	}
}

func TestGenerateState_Length(t *testing.T) {
	s, err := GenerateState()
	require.NoError(t, err)
	assert.Len(t, s, 32)
}

func TestGeneratePKCEParams_NotDeterministic(t *testing.T) {
	a, err := GeneratePKCEParams()
	require.NoError(t, err)
	b, err := GeneratePKCEParams()
	require.NoError(t, err)
	assert.NotEqual(t, a.CodeVerifier, b.CodeVerifier)
}
