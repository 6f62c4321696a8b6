package isolatedsession

import (
	"net/http"
	"sync"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authresult"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/remoteidentity"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tokenstore"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnellog"
)

// TokenStoreFactory builds a dedicated token store for one isolated
// session, e.g. wrapping a shared backend via pkg/remotestore.
type TokenStoreFactory func(remote *remoteidentity.RemoteUserContext) tokenstore.Store

// Config configures a Manager.
type Config struct {
	SessionTTL         time.Duration
	MaxInactivity      time.Duration
	MaxSessionsPerClient int
	CleanupInterval    time.Duration
}

func (c *Config) applyDefaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 8 * time.Hour
	}
	if c.MaxInactivity <= 0 {
		c.MaxInactivity = time.Hour
	}
	if c.MaxSessionsPerClient <= 0 {
		c.MaxSessionsPerClient = 10
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
}

// CleanupStats summarizes one sweep.
type CleanupStats struct {
	Expired  int
	Inactive int
	Failed   int
	Duration time.Duration
}

// Manager owns every IsolatedSession, guarded by a single RWMutex.
type Manager struct {
	cfg       Config
	storeFor  TokenStoreFactory
	audit     *tunnellog.Audit

	mu           sync.RWMutex
	sessions     map[string]*IsolatedSession
	perClient    map[string]int // isolation key -> active session count

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager builds a Manager and starts its background cleanup sweep.
func NewManager(cfg Config, storeFor TokenStoreFactory) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:       cfg,
		storeFor:  storeFor,
		audit:     tunnellog.NewAudit(),
		sessions:  make(map[string]*IsolatedSession),
		perClient: make(map[string]int),
		stopCh:    make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Stop halts the background cleanup sweep. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Create validates the per-client session quota, builds connection
// metadata and isolation boundaries from r, and instantiates a new
// session with its own token store. The session starts Initializing and
// is moved to Active before it is stored and returned.
func (m *Manager) Create(r *http.Request, remote *remoteidentity.RemoteUserContext) (*IsolatedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.perClient[remote.IsolationKey] >= m.cfg.MaxSessionsPerClient {
		return nil, tunnelerr.NewSecurityError("client has reached its maximum concurrent session quota", nil)
	}

	now := time.Now()
	id := remote.RemoteSessionID
	if id == "" {
		id = generateID()
	}
	if _, exists := m.sessions[id]; exists {
		return nil, tunnelerr.NewSecurityError("session id already exists", nil)
	}

	var store tokenstore.Store
	if m.storeFor != nil {
		store = m.storeFor(remote)
	}

	sess := &IsolatedSession{
		id:         id,
		state:      StateInitializing,
		remote:     remote,
		connection: ClassifyConnection(r),
		boundary: IsolationBoundary{
			IsolationKey: remote.IsolationKey,
			Directory:    remote.Dir,
		},
		tokenStore: store,
		tags:       make(map[string]string),
		createdAt:  now,
		updatedAt:  now,
		lastActive: now,
		expiresAt:  now.Add(m.cfg.SessionTTL),
	}
	sess.state = StateActive

	m.sessions[id] = sess
	m.perClient[remote.IsolationKey]++
	m.audit.Event("session.create", "session_id", id, "isolation_key", remote.IsolationKey)
	return sess, nil
}

// Get returns the session by id, marking it touched. Returns false if
// absent, terminated, or expired.
func (m *Manager) Get(id string) (*IsolatedSession, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	snap := sess.Snapshot()
	if snap.State == StateTerminated || snap.State == StateExpired {
		return nil, false
	}
	sess.touch()
	return sess, true
}

// Authenticate attaches result to the session and marks it Authenticated.
func (m *Manager) Authenticate(id string, result *authresult.Result) error {
	sess, ok := m.Get(id)
	if !ok {
		return tunnelerr.NewSecurityError("no such session", nil)
	}
	sess.authenticate(result)
	m.audit.Event("session.authenticate", "session_id", id, "user_id", result.UserID)
	return nil
}

// Suspend transitions an Active/Authenticated session to Suspended.
// Suspended sessions retain storage. Get still returns a suspended
// session, and security.Validator does not check the session's state.
func (m *Manager) Suspend(id, reason string) error {
	sess, ok := m.Get(id)
	if !ok {
		return tunnelerr.NewSecurityError("no such session", nil)
	}
	if err := sess.suspend(reason); err != nil {
		return err
	}
	m.audit.Event("session.suspend", "session_id", id, "reason", reason)
	return nil
}

// Resume transitions a Suspended session back to Active.
func (m *Manager) Resume(id string) error {
	sess, ok := m.Get(id)
	if !ok {
		return tunnelerr.NewSecurityError("no such session", nil)
	}
	if err := sess.resume(); err != nil {
		return err
	}
	m.audit.Event("session.resume", "session_id", id)
	return nil
}

// Terminate removes a session and releases its per-client quota slot.
func (m *Manager) Terminate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return tunnelerr.NewSecurityError("no such session", nil)
	}
	sess.mu.Lock()
	sess.state = StateTerminated
	key := sess.boundary.IsolationKey
	sess.mu.Unlock()

	delete(m.sessions, id)
	if m.perClient[key] > 0 {
		m.perClient[key]--
	}
	m.audit.Event("session.terminate", "session_id", id)
	return nil
}

// Count returns the number of tracked sessions, for tests/metrics.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CleanupOnce()
		}
	}
}

// CleanupOnce sweeps for sessions past expires_at or inactive beyond
// max_inactivity_hours, terminating each and recording counters.
func (m *Manager) CleanupOnce() CleanupStats {
	start := time.Now()
	stats := CleanupStats{}

	m.mu.Lock()
	now := time.Now()
	var toRemove []string
	for id, sess := range m.sessions {
		snap := sess.Snapshot()
		switch {
		case now.After(snap.ExpiresAt):
			stats.Expired++
			toRemove = append(toRemove, id)
		case now.Sub(snap.LastActive) > m.cfg.MaxInactivity:
			stats.Inactive++
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		sess := m.sessions[id]
		sess.mu.Lock()
		sess.state = StateExpired
		key := sess.boundary.IsolationKey
		sess.mu.Unlock()
		delete(m.sessions, id)
		if m.perClient[key] > 0 {
			m.perClient[key]--
		}
	}
	m.mu.Unlock()

	stats.Duration = time.Since(start)
	if stats.Expired > 0 || stats.Inactive > 0 {
		m.audit.Event("session.cleanup", "expired", stats.Expired, "inactive", stats.Inactive)
	}
	return stats
}
