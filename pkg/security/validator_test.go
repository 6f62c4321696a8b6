package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/isolatedsession"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/remoteidentity"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/usercontext"
)

func newSession(t *testing.T, ip, ua string) (*isolatedsession.Manager, *isolatedsession.IsolatedSession) {
	t.Helper()
	uc := &usercontext.UserContext{Username: "alice", Hostname: "box", UID: 1000, SessionDir: t.TempDir()}

	initReq := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	initReq.Header.Set("User-Agent", ua)
	remote, err := remoteidentity.New(uc, remoteidentity.ClientIdentity{
		ClientIP: ip, ClientHostname: "h", ClientUsername: "u", UserAgent: ua,
		SessionFingerprint: remoteidentity.Fingerprint(initReq),
	})
	require.NoError(t, err)

	m := isolatedsession.NewManager(isolatedsession.Config{}, nil)
	sess, err := m.Create(initReq, remote)
	require.NoError(t, err)
	return m, sess
}

func reqWith(ip, ua string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.RemoteAddr = ip + ":1234"
	r.Header.Set("User-Agent", ua)
	return r
}

func TestValidateSession_NoChangesHighScore(t *testing.T) {
	m, sess := newSession(t, "10.0.0.1", "Chrome/120.0")
	defer m.Stop()

	v := New(Config{})
	result, err := v.ValidateSession(reqWith("10.0.0.1", "Chrome/120.0"), sess)
	require.NoError(t, err)
	assert.Greater(t, result.SecurityScore, 0.9)
	assert.False(t, result.ShouldBlock)
}

func TestValidateSession_IPChangePenalized(t *testing.T) {
	m, sess := newSession(t, "10.0.0.1", "Chrome/120.0")
	defer m.Stop()

	v := New(Config{})
	result, err := v.ValidateSession(reqWith("203.0.113.9", "Chrome/120.0"), sess)
	require.NoError(t, err)
	assert.Less(t, result.SecurityScore, 0.8)
}

func TestValidateSession_BrowserFamilyChangeIsHijackingCritical(t *testing.T) {
	m, sess := newSession(t, "10.0.0.1", "Chrome/120.0")
	defer m.Stop()

	v := New(Config{})
	result, err := v.ValidateSession(reqWith("10.0.0.1", "Firefox/121.0"), sess)
	require.NoError(t, err)
	assert.True(t, result.ShouldBlock)
	assert.Equal(t, ThreatCritical, result.ThreatLevel)
}

func TestValidateSession_MinorVersionChangeIsNotHijacking(t *testing.T) {
	m, sess := newSession(t, "10.0.0.1", "Chrome/120.0")
	defer m.Stop()

	v := New(Config{})
	result, err := v.ValidateSession(reqWith("10.0.0.1", "Chrome/121.0"), sess)
	require.NoError(t, err)
	for _, f := range result.ThreatFindings {
		assert.NotEqual(t, ThreatSessionHijacking, f.Rule)
	}
}

func TestValidateSession_MaliciousUserAgentDetected(t *testing.T) {
	m, sess := newSession(t, "10.0.0.1", "curl/8.0")
	defer m.Stop()

	v := New(Config{})
	result, err := v.ValidateSession(reqWith("10.0.0.1", "curl/8.0"), sess)
	require.NoError(t, err)
	found := false
	for _, f := range result.ThreatFindings {
		if f.Rule == ThreatMaliciousHeaders {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateSession_IPWhitelistPolicyViolation(t *testing.T) {
	m, sess := newSession(t, "203.0.113.9", "Chrome/120.0")
	defer m.Stop()

	v := New(Config{Policies: []Policy{
		{ID: "p1", Name: "corp-network", Type: PolicyIPWhitelist, Enabled: true, AllowedIPs: []string{"10.0.0.*"}},
	}})
	result, err := v.ValidateSession(reqWith("203.0.113.9", "Chrome/120.0"), sess)
	require.NoError(t, err)
	require.Len(t, result.PolicyViolations, 1)
	assert.Equal(t, PolicyIPWhitelist, result.PolicyViolations[0].PolicyType)
}

func TestValidateSession_TimeoutZeroesScoreAndForcesTerminate(t *testing.T) {
	m, sess := newSession(t, "10.0.0.1", "Chrome/120.0")
	defer m.Stop()

	v := New(Config{SessionTimeoutSeconds: 1})
	time.Sleep(1100 * time.Millisecond)

	result, err := v.ValidateSession(reqWith("10.0.0.1", "Chrome/120.0"), sess)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.SecurityScore)
	assert.True(t, result.ShouldBlock)
	assert.Contains(t, result.RecommendedActions, ActionTerminate)
}

func TestRecoveryManager_IssueAndRedeemSingleUse(t *testing.T) {
	rm := NewRecoveryManager(RecoveryConfig{RequireIPMatch: true})
	token, err := rm.Issue("sess-1", "fp1", "10.0.0.1", "Chrome/120.0")
	require.NoError(t, err)

	sessionID, err := rm.Redeem("client-1", token.Token, "10.0.0.1", "Chrome/120.0")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sessionID)

	_, err = rm.Redeem("client-1", token.Token, "10.0.0.1", "Chrome/120.0")
	require.Error(t, err)
}

func TestRecoveryManager_IPMismatchRejected(t *testing.T) {
	rm := NewRecoveryManager(RecoveryConfig{RequireIPMatch: true})
	token, err := rm.Issue("sess-1", "fp1", "10.0.0.1", "Chrome/120.0")
	require.NoError(t, err)

	_, err = rm.Redeem("client-1", token.Token, "203.0.113.9", "Chrome/120.0")
	require.Error(t, err)
}

func TestRecoveryManager_RateLimited(t *testing.T) {
	rm := NewRecoveryManager(RecoveryConfig{RateLimitPerMinute: 60, RateLimitBurst: 1})
	token, _ := rm.Issue("sess-1", "fp1", "10.0.0.1", "ua")

	_, err := rm.Redeem("client-1", "bogus-token", "10.0.0.1", "ua")
	require.Error(t, err)
	_, err = rm.Redeem("client-1", token.Token, "10.0.0.1", "ua")
	require.Error(t, err, "second immediate call should be rate-limited even though the token itself is valid")
}
