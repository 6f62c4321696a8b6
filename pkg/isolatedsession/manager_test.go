package isolatedsession

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/remoteidentity"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tokenstore"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/usercontext"
)

func newRemote(t *testing.T, ip string) *remoteidentity.RemoteUserContext {
	t.Helper()
	uc := &usercontext.UserContext{Username: "alice", Hostname: "box", UID: 1000, SessionDir: t.TempDir()}
	rc, err := remoteidentity.New(uc, remoteidentity.ClientIdentity{ClientIP: ip, ClientHostname: "h", ClientUsername: "u"})
	require.NoError(t, err)
	return rc
}

func newReq() *http.Request {
	return httptest.NewRequest(http.MethodPost, "/mcp", nil)
}

func TestCreate_TransitionsToActive(t *testing.T) {
	m := NewManager(Config{}, nil)
	defer m.Stop()

	sess, err := m.Create(newReq(), newRemote(t, "10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, StateActive, sess.Snapshot().State)
}

func TestCreate_EnforcesPerClientQuota(t *testing.T) {
	m := NewManager(Config{MaxSessionsPerClient: 1}, nil)
	defer m.Stop()

	remote := newRemote(t, "10.0.0.1")
	_, err := m.Create(newReq(), remote)
	require.NoError(t, err)

	remote2 := *remote
	remote2.RemoteSessionID = "different-session-id"
	_, err = m.Create(newReq(), &remote2)
	require.Error(t, err)
}

func TestAuthenticate_MarksAuthenticated(t *testing.T) {
	m := NewManager(Config{}, nil)
	defer m.Stop()

	sess, err := m.Create(newReq(), newRemote(t, "10.0.0.1"))
	require.NoError(t, err)

	require.NoError(t, m.Authenticate(sess.ID(), &authresult.Result{Kind: authresult.KindAPIKey, UserID: "u1"}))
	assert.Equal(t, StateAuthenticated, sess.Snapshot().State)
}

func TestSuspendResume_RoundTrip(t *testing.T) {
	m := NewManager(Config{}, nil)
	defer m.Stop()

	sess, err := m.Create(newReq(), newRemote(t, "10.0.0.1"))
	require.NoError(t, err)
	created := sess.Snapshot()

	time.Sleep(time.Millisecond)
	require.NoError(t, m.Suspend(sess.ID(), "client drift"))
	suspended := sess.Snapshot()
	assert.Equal(t, StateSuspended, suspended.State)
	assert.True(t, suspended.LastActive.After(created.LastActive), "suspend should update last_activity")

	time.Sleep(time.Millisecond)
	require.NoError(t, m.Resume(sess.ID()))
	resumed := sess.Snapshot()
	assert.Equal(t, StateActive, resumed.State)
	assert.True(t, resumed.LastActive.After(suspended.LastActive), "resume should update last_activity")
}

func TestSuspend_RejectsAlreadySuspended(t *testing.T) {
	m := NewManager(Config{}, nil)
	defer m.Stop()

	sess, err := m.Create(newReq(), newRemote(t, "10.0.0.1"))
	require.NoError(t, err)

	require.NoError(t, m.Suspend(sess.ID(), "first"))
	err = m.Suspend(sess.ID(), "second")
	assert.Error(t, err)
}

func TestCleanupOnce_TerminatesExpired(t *testing.T) {
	m := NewManager(Config{SessionTTL: 10 * time.Millisecond, MaxInactivity: time.Hour}, nil)
	defer m.Stop()

	sess, err := m.Create(newReq(), newRemote(t, "10.0.0.1"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	stats := m.CleanupOnce()
	assert.Equal(t, 1, stats.Expired)

	_, ok := m.Get(sess.ID())
	assert.False(t, ok)
}

func TestTerminate_ReleasesQuotaSlot(t *testing.T) {
	m := NewManager(Config{MaxSessionsPerClient: 1}, nil)
	defer m.Stop()

	remote := newRemote(t, "10.0.0.1")
	sess, err := m.Create(newReq(), remote)
	require.NoError(t, err)
	require.NoError(t, m.Terminate(sess.ID()))

	remote2 := *remote
	remote2.RemoteSessionID = "reused-slot"
	_, err = m.Create(newReq(), &remote2)
	require.NoError(t, err)
}

func TestClassifyConnection_WebSocketAndSSE(t *testing.T) {
	ws := newReq()
	ws.Header.Set("Upgrade", "websocket")
	assert.Equal(t, ConnWebSocket, ClassifyConnection(ws).Type)

	sse := newReq()
	sse.Header.Set("Accept", "text/event-stream")
	assert.Equal(t, ConnSSE, ClassifyConnection(sse).Type)
}

func TestManager_PerSessionTokenStore(t *testing.T) {
	m := NewManager(Config{}, func(remote *remoteidentity.RemoteUserContext) tokenstore.Store {
		return tokenstore.NewMemoryStore()
	})
	defer m.Stop()

	sess, err := m.Create(newReq(), newRemote(t, "10.0.0.1"))
	require.NoError(t, err)
	assert.NotNil(t, sess.TokenStore())
}
