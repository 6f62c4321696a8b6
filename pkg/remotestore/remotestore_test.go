package remotestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/secretval"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tokenstore"
)

func TestStoreAndRetrieve_RoundTrip(t *testing.T) {
	base := tokenstore.NewMemoryStore()
	rs := New(base, "isokey123456", "client-1", "10.0.0.1", "sess-1")

	require.NoError(t, rs.StoreToken("github:u1", tokenstore.TokenData{AccessToken: secretval.New("tok")}))

	got, ok, err := rs.RetrieveToken("github:u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok", got.AccessToken.Expose())
}

func TestRetrieve_ClientMismatchReportsNotFound(t *testing.T) {
	base := tokenstore.NewMemoryStore()
	writer := New(base, "isokey123456", "client-1", "10.0.0.1", "sess-1")
	require.NoError(t, writer.StoreToken("github:u1", tokenstore.TokenData{AccessToken: secretval.New("tok")}))

	reader := New(base, "isokey123456", "client-2", "10.0.0.1", "sess-1")
	_, ok, err := reader.RetrieveToken("github:u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetrieve_IPMismatchReportsNotFound(t *testing.T) {
	base := tokenstore.NewMemoryStore()
	writer := New(base, "isokey123456", "client-1", "10.0.0.1", "sess-1")
	require.NoError(t, writer.StoreToken("github:u1", tokenstore.TokenData{AccessToken: secretval.New("tok")}))

	reader := New(base, "isokey123456", "client-1", "192.168.1.1", "sess-1")
	_, ok, err := reader.RetrieveToken("github:u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeysAreRewrittenAndScopedToIsolationKey(t *testing.T) {
	base := tokenstore.NewMemoryStore()
	rsA := New(base, "isokeyAAAAAA", "client-1", "10.0.0.1", "sess-1")
	rsB := New(base, "isokeyBBBBBB", "client-2", "10.0.0.2", "sess-2")

	require.NoError(t, rsA.StoreToken("shared-key", tokenstore.TokenData{AccessToken: secretval.New("a")}))
	require.NoError(t, rsB.StoreToken("shared-key", tokenstore.TokenData{AccessToken: secretval.New("b")}))

	keys, err := base.ListTokens()
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	listedA, err := rsA.ListTokens()
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-key"}, listedA)
}

func TestDeleteToken_OnlyAffectsScopedKey(t *testing.T) {
	base := tokenstore.NewMemoryStore()
	rs := New(base, "isokey123456", "client-1", "10.0.0.1", "sess-1")
	require.NoError(t, rs.StoreToken("github:u1", tokenstore.TokenData{AccessToken: secretval.New("tok")}))
	require.NoError(t, rs.DeleteToken("github:u1"))

	_, ok, err := rs.RetrieveToken("github:u1")
	require.NoError(t, err)
	assert.False(t, ok)
}
