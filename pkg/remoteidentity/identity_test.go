package remoteidentity

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/usercontext"
)

func newRequest(headers map[string]string, remoteAddr string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.RemoteAddr = remoteAddr
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestExtract_FullHeadersHighConfidence(t *testing.T) {
	r := newRequest(map[string]string{
		"User-Agent":         "my-mcp-client/1.0",
		"X-Client-Hostname":  "laptop.local",
		"X-Client-Username":  "alice",
		"Accept":             "application/json",
		"Accept-Language":    "en-US",
	}, "10.0.0.5:54321")

	id, err := Extract(r, nil, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, id.Confidence)
	assert.Equal(t, "10.0.0.5", id.ClientIP)
	assert.NotEmpty(t, id.SessionFingerprint)
}

func TestExtract_MissingFieldsPenalized(t *testing.T) {
	r := newRequest(nil, "10.0.0.5:54321")
	id, err := Extract(r, nil, ExtractOptions{})
	require.NoError(t, err)
	assert.Less(t, id.Confidence, 1.0)
}

func TestExtract_MCPReportedIPMismatchPenalized(t *testing.T) {
	r := newRequest(map[string]string{"User-Agent": "client/1.0"}, "10.0.0.5:1234")
	id, err := Extract(r, &MCPInitIdentity{ReportedIP: "192.168.1.1"}, ExtractOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, id.Confidence, 0.7)
}

func TestExtract_UntrustedForwardedForPenalized(t *testing.T) {
	r := newRequest(map[string]string{
		"User-Agent":        "client/1.0",
		"X-Forwarded-For":   "203.0.113.5, 10.0.0.1",
		"X-Client-Hostname": "h",
		"X-Client-Username": "u",
	}, "10.0.0.5:1234")

	untrusted, err := Extract(r, nil, ExtractOptions{TrustForwardedFor: false})
	require.NoError(t, err)

	r2 := newRequest(map[string]string{
		"User-Agent":        "client/1.0",
		"X-Forwarded-For":   "203.0.113.5, 10.0.0.1",
		"X-Client-Hostname": "h",
		"X-Client-Username": "u",
	}, "10.0.0.5:1234")
	trusted, err := Extract(r2, nil, ExtractOptions{TrustForwardedFor: true})
	require.NoError(t, err)

	assert.Less(t, untrusted.Confidence, trusted.Confidence)
	assert.Equal(t, "203.0.113.5", trusted.ClientIP)
}

func TestExtract_StrictModeRejectsLowConfidence(t *testing.T) {
	r := newRequest(nil, "10.0.0.5:1234")
	_, err := Extract(r, nil, ExtractOptions{StrictMode: true, MinConfidence: 0.99})
	require.Error(t, err)
}

func TestIsolationKey_DeterministicAndLength(t *testing.T) {
	k1 := IsolationKey(1000, "10.0.0.1", "host", "user", "nonce-a")
	k2 := IsolationKey(1000, "10.0.0.1", "host", "user", "nonce-a")
	k3 := IsolationKey(1000, "10.0.0.1", "host", "user", "nonce-b")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 48)
}

func TestRemoteSessionID_Length(t *testing.T) {
	id := RemoteSessionID(ClientIdentity{ClientIP: "1.2.3.4"}, "nonce")
	assert.Len(t, id, 32)
}

func TestNew_CreatesPerClientDirectory(t *testing.T) {
	dir := t.TempDir()
	uc := &usercontext.UserContext{Username: "alice", Hostname: "box", UID: 1000, SessionDir: dir}

	rc, err := New(uc, ClientIdentity{ClientIP: "10.0.0.1", ClientHostname: "h", ClientUsername: "u"})
	require.NoError(t, err)
	info, err := os.Stat(rc.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
