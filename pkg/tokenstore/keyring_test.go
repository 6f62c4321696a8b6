package tokenstore

import (
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringStore_StoreRetrieveDelete(t *testing.T) {
	keyring.MockInit()
	ks := NewKeyringStore("MagicTunnel-Test")

	data := TokenData{AccessToken: newTestSecret("tok-123"), Provider: "github"}
	require.NoError(t, ks.StoreToken("k1", data))

	got, ok, err := ks.RetrieveToken("k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-123", got.AccessToken.Expose())

	require.NoError(t, ks.DeleteToken("k1"))
	_, ok, err = ks.RetrieveToken("k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyringStore_RetrieveMissingIsNotError(t *testing.T) {
	keyring.MockInit()
	ks := NewKeyringStore("MagicTunnel-Test")

	got, ok, err := ks.RetrieveToken("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestKeyringStore_ListTokensIsAlwaysEmpty(t *testing.T) {
	keyring.MockInit()
	ks := NewKeyringStore("MagicTunnel-Test")
	require.NoError(t, ks.StoreToken("k1", TokenData{AccessToken: newTestSecret("x")}))

	list, err := ks.ListTokens()
	require.NoError(t, err)
	assert.Empty(t, list)
}
