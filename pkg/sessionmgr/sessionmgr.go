// Package sessionmgr implements C11: startup recovery of stored
// credentials against each provider's userinfo endpoint, periodic
// revalidation of sessions that have gone stale, and atomic persistence
// of SessionState to <session_dir>/<hostname>_session_state.json.
package sessionmgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tokenstore"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnellog"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/usercontext"
)

const sessionStateVersion = 1

// ActiveSession is one entry of SessionState.ActiveSessions, keyed by
// "<unique_user_id>:<provider>:<user_id>".
type ActiveSession struct {
	Provider      string    `json:"provider"`
	UserID        string    `json:"user_id"`
	IsValid       bool      `json:"is_valid"`
	LastValidated time.Time `json:"last_validated"`
}

// SessionState is the persisted recovery/validation bookkeeping struct.
type SessionState struct {
	ActiveSessions    map[string]ActiveSession `json:"active_sessions"`
	LastRecoveryCheck time.Time                `json:"last_recovery_check"`
	RecoveryAttempts  int                      `json:"recovery_attempts"`
	FailedProviders   []string                 `json:"failed_providers"`
	Version           int                      `json:"version"`
	SystemID          string                   `json:"system_id"`
}

// NewSessionState builds a fresh, empty SessionState stamped with the
// current system's SystemID.
func NewSessionState(uc *usercontext.UserContext) SessionState {
	return SessionState{
		ActiveSessions: make(map[string]ActiveSession),
		Version:        sessionStateVersion,
		SystemID:       SystemID(uc),
	}
}

// SystemID is a stable hash of (hostname, username, platform). A
// SessionState loaded from disk whose SystemID disagrees with the
// current system's is treated as a foreign copy and discarded.
func SystemID(uc *usercontext.UserContext) string {
	h := sha256.New()
	h.Write([]byte(uc.Hostname))
	h.Write([]byte("\x00"))
	h.Write([]byte(uc.Username))
	h.Write([]byte("\x00"))
	h.Write([]byte(runtime.GOOS))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// sessionKey builds the ActiveSessions map key.
func sessionKey(uniqueUserID, provider, userID string) string {
	return uniqueUserID + ":" + provider + ":" + userID
}

// UserinfoProbe is a small injected liveness check: it returns nil when
// token is still valid against provider's userinfo endpoint, an error
// otherwise. Session Manager has no hard HTTP dependency on any specific
// provider client — callers wire in whatever validator fits.
type UserinfoProbe func(ctx context.Context, provider, token string) error

// RecoveryResult summarizes one RecoverSessions run.
type RecoveryResult struct {
	Recovered       int
	Failed          int
	FailedProviders []string
}

// Manager owns the session-recovery and periodic-validation loops.
type Manager struct {
	uc    *usercontext.UserContext
	store tokenstore.Store
	probe UserinfoProbe

	persistEnabled        bool
	maxRecoveryAttempts   int
	validationInterval    time.Duration

	mu    sync.Mutex
	state SessionState
}

// Config configures a Manager.
type Config struct {
	PersistSessionState       bool
	MaxRecoveryAttempts       int
	ValidationIntervalMinutes int
}

// New builds a Manager. It attempts to load a persisted SessionState
// from disk; a missing file or a SystemID mismatch both result in a
// fresh SessionState rather than an error.
func New(uc *usercontext.UserContext, store tokenstore.Store, probe UserinfoProbe, cfg Config) *Manager {
	m := &Manager{
		uc:                  uc,
		store:               store,
		probe:               probe,
		persistEnabled:      cfg.PersistSessionState,
		maxRecoveryAttempts: cfg.MaxRecoveryAttempts,
		validationInterval:  time.Duration(cfg.ValidationIntervalMinutes) * time.Minute,
	}
	if m.maxRecoveryAttempts <= 0 {
		m.maxRecoveryAttempts = 3
	}
	if m.validationInterval <= 0 {
		m.validationInterval = 30 * time.Minute
	}

	loaded, ok := m.load()
	if ok && loaded.SystemID == SystemID(uc) {
		m.state = loaded
		// The recovery cap counts this process's attempts only.
		m.state.RecoveryAttempts = 0
	} else {
		m.state = NewSessionState(uc)
	}
	return m
}

func (m *Manager) statePath() string {
	return filepath.Join(m.uc.SessionDir, m.uc.Hostname+"_session_state.json")
}

func (m *Manager) load() (SessionState, bool) {
	data, err := os.ReadFile(m.statePath())
	if err != nil {
		return SessionState{}, false
	}
	var s SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return SessionState{}, false
	}
	return s, true
}

// persist writes the current state atomically (write-temp-then-rename)
// if persistence is enabled. Failure is logged, never fatal — session
// persistence is a convenience, not a correctness requirement.
func (m *Manager) persist() {
	if !m.persistEnabled {
		return
	}
	path := m.statePath()
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		tunnellog.Warnf("failed to marshal session state: %v", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		tunnellog.Warnf("failed to write session state temp file: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		tunnellog.Warnf("failed to atomically replace session state: %v", err)
	}
}

// RecoverSessions iterates every stored token, probes each non-expired
// one against its provider's userinfo endpoint, and records the result.
// A failure on one provider marks it failed and continues; the overall
// operation never aborts. Runs at most maxRecoveryAttempts times per
// process; calls beyond that do not re-probe and return a result that
// carries only the FailedProviders recorded so far, with no recovered or
// failed counts.
func (m *Manager) RecoverSessions(ctx context.Context) (*RecoveryResult, error) {
	m.mu.Lock()
	if m.state.RecoveryAttempts >= m.maxRecoveryAttempts {
		result := &RecoveryResult{FailedProviders: append([]string(nil), m.state.FailedProviders...)}
		m.mu.Unlock()
		return result, nil
	}
	m.state.RecoveryAttempts++
	m.mu.Unlock()

	keys, err := m.store.ListTokens()
	if err != nil {
		return nil, err
	}

	result := &RecoveryResult{}
	failedSet := make(map[string]bool)

	for _, key := range keys {
		token, ok, err := m.store.RetrieveToken(key)
		if err != nil || !ok || token == nil {
			continue
		}
		if token.IsExpired() {
			continue
		}

		err = m.probe(ctx, token.Provider, token.AccessToken.Expose())

		m.mu.Lock()
		sk := sessionKey(m.uc.GetUniqueUserID(), token.Provider, token.UserID)
		if err != nil {
			tunnellog.Warnf("session recovery failed for provider %s: %v", token.Provider, err)
			failedSet[token.Provider] = true
			result.Failed++
			m.state.ActiveSessions[sk] = ActiveSession{
				Provider:      token.Provider,
				UserID:        token.UserID,
				IsValid:       false,
				LastValidated: time.Now(),
			}
		} else {
			result.Recovered++
			m.state.ActiveSessions[sk] = ActiveSession{
				Provider:      token.Provider,
				UserID:        token.UserID,
				IsValid:       true,
				LastValidated: time.Now(),
			}
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	for p := range failedSet {
		result.FailedProviders = append(result.FailedProviders, p)
	}
	m.state.FailedProviders = result.FailedProviders
	m.state.LastRecoveryCheck = time.Now()
	m.persist()
	m.mu.Unlock()

	return result, nil
}

// StartPeriodicValidation launches a background loop that revalidates
// sessions whose time-since-validation exceeds validationInterval, every
// validationInterval. It returns a stop function the caller must invoke
// to terminate the loop (e.g. on service shutdown).
func (m *Manager) StartPeriodicValidation(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(m.validationInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.validateStale(ctx)
			}
		}
	}()

	return cancel
}

func (m *Manager) validateStale(ctx context.Context) {
	m.mu.Lock()
	due := make(map[string]ActiveSession)
	now := time.Now()
	for key, sess := range m.state.ActiveSessions {
		if now.Sub(sess.LastValidated) >= m.validationInterval {
			due[key] = sess
		}
	}
	m.mu.Unlock()

	for key, sess := range due {
		tokenKey := tokenstore.Key(m.uc.GetUniqueUserID(), sess.Provider, sess.UserID)
		token, ok, err := m.store.RetrieveToken(tokenKey)
		if err != nil || !ok || token == nil {
			continue
		}

		err = m.probe(ctx, token.Provider, token.AccessToken.Expose())

		m.mu.Lock()
		sess.LastValidated = time.Now()
		sess.IsValid = err == nil
		m.state.ActiveSessions[key] = sess
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.persist()
	m.mu.Unlock()
}

// State returns a copy of the current SessionState, for inspection/tests.
func (m *Manager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.state
	cp.ActiveSessions = make(map[string]ActiveSession, len(m.state.ActiveSessions))
	for k, v := range m.state.ActiveSessions {
		cp.ActiveSessions[k] = v
	}
	cp.FailedProviders = append([]string(nil), m.state.FailedProviders...)
	return cp
}
