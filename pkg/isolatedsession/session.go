// Package isolatedsession implements C14: the per-client isolated
// session state machine. It is grounded on toolhive's
// pkg/transport/session manager shape — a factory-function constructor,
// a single lock-guarded map, and a ticker-driven TTL sweep — generalized
// from that package's single ProxySession type to the richer
// IsolatedSession with isolation boundaries, connection metadata, and a
// dedicated per-session token store.
package isolatedsession

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/remoteidentity"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tokenstore"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// State is the session lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateActive        State = "active"
	StateAuthenticated  State = "authenticated"
	StateSuspended      State = "suspended"
	StateExpired        State = "expired"
	StateTerminated     State = "terminated"
)

// ConnectionType is the transport heuristic classification.
type ConnectionType string

const (
	ConnWebSocket ConnectionType = "websocket"
	ConnSSE        ConnectionType = "sse"
	ConnHTTP2      ConnectionType = "http2"
	ConnHTTP3      ConnectionType = "http3"
	ConnHTTPS      ConnectionType = "https"
	ConnHTTP       ConnectionType = "http"
)

// TLSInfo is a best-effort extraction of TLS details, either from the
// actual *tls.ConnectionState or from proxy-forwarded headers when the
// connection terminates at a reverse proxy.
type TLSInfo struct {
	Enabled    bool
	Version    string
	CipherSuite string
	FromProxy  bool
}

// ConnectionMetadata describes the transport a session arrived over.
type ConnectionMetadata struct {
	Type ConnectionType
	TLS  TLSInfo
	RemoteAddr string
}

// IsolationBoundary records the scoping applied to a session: its
// isolation key and per-client directory.
type IsolationBoundary struct {
	IsolationKey string
	Directory    string
}

// IsolatedSession is one isolated per-client session.
type IsolatedSession struct {
	mu sync.RWMutex

	id          string
	state       State
	remote      *remoteidentity.RemoteUserContext
	connection  ConnectionMetadata
	boundary    IsolationBoundary
	tokenStore  tokenstore.Store
	authResult  *authresult.Result
	tags        map[string]string

	createdAt    time.Time
	updatedAt    time.Time
	lastActive   time.Time
	expiresAt    time.Time
}

// ID returns the session id.
func (s *IsolatedSession) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Snapshot is a value copy of the session's exported view, to avoid
// holding the lock across a caller's await/IO.
type Snapshot struct {
	ID         string
	State      State
	Connection ConnectionMetadata
	Boundary   IsolationBoundary
	AuthResult *authresult.Result
	Tags       map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time
}

// Snapshot clones the session's current state under the read lock.
func (s *IsolatedSession) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		tags[k] = v
	}
	return Snapshot{
		ID:         s.id,
		State:      s.state,
		Connection: s.connection,
		Boundary:   s.boundary,
		AuthResult: s.authResult,
		Tags:       tags,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
		LastActive: s.lastActive,
		ExpiresAt:  s.expiresAt,
	}
}

// Identity returns the ClientIdentity captured when the session was
// created, for drift comparisons against the identity of a later
// request on the same session.
func (s *IsolatedSession) Identity() remoteidentity.ClientIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote.Identity
}

// TokenStore returns this session's dedicated token store.
func (s *IsolatedSession) TokenStore() tokenstore.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenStore
}

// touch updates lastActive/updatedAt under the write lock.
func (s *IsolatedSession) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.lastActive = now
	s.updatedAt = now
}

// Authenticate attaches an AuthenticationResult and marks the session
// Authenticated.
func (s *IsolatedSession) authenticate(result *authresult.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authResult = result
	s.state = StateAuthenticated
	s.updatedAt = time.Now()
}

// suspend marks the session Suspended, tagging the reason. Per spec.md
// §8's round-trip law, last_activity is the one field a suspend/resume
// cycle is expected to change.
func (s *IsolatedSession) suspend(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive && s.state != StateAuthenticated {
		return tunnelerr.NewSecurityError("only an active or authenticated session can be suspended", nil)
	}
	s.state = StateSuspended
	if s.tags == nil {
		s.tags = make(map[string]string)
	}
	s.tags["suspend_reason"] = reason
	now := time.Now()
	s.updatedAt = now
	s.lastActive = now
	return nil
}

// resume returns a Suspended session to Active.
func (s *IsolatedSession) resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSuspended {
		return tunnelerr.NewSecurityError("only a suspended session can be resumed", nil)
	}
	s.state = StateActive
	delete(s.tags, "suspend_reason")
	now := time.Now()
	s.updatedAt = now
	s.lastActive = now
	return nil
}

// ClassifyConnection applies the websocket/sse/http2/http3/https/http
// heuristic to an inbound request.
func ClassifyConnection(r *http.Request) ConnectionMetadata {
	meta := ConnectionMetadata{RemoteAddr: r.RemoteAddr}

	switch {
	case strings.EqualFold(r.Header.Get("Upgrade"), "websocket"):
		meta.Type = ConnWebSocket
	case strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream"):
		meta.Type = ConnSSE
	case r.ProtoMajor == 3:
		meta.Type = ConnHTTP3
	case r.ProtoMajor == 2:
		meta.Type = ConnHTTP2
	case r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"):
		meta.Type = ConnHTTPS
	default:
		meta.Type = ConnHTTP
	}

	meta.TLS = extractTLSInfo(r)
	return meta
}

func extractTLSInfo(r *http.Request) TLSInfo {
	if r.TLS != nil {
		return TLSInfo{
			Enabled:     true,
			Version:     tlsVersionName(r.TLS.Version),
			CipherSuite: tlsCipherName(r.TLS.CipherSuite),
		}
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return TLSInfo{
			Enabled:   true,
			Version:   r.Header.Get("X-Forwarded-TLS-Version"),
			FromProxy: true,
		}
	}
	return TLSInfo{}
}

func generateID() string {
	return uuid.NewString()
}
