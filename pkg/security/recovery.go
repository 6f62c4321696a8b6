package security

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnelerr"
)

// RecoveryToken binds a single-use recovery credential to the session it
// can restore and the client fingerprint/IP/UA it was issued against.
type RecoveryToken struct {
	Token       string
	SessionID   string
	Fingerprint string
	OriginalIP  string
	OriginalUA  string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Used        bool
}

// RecoveryConfig tunes token lifetime and the per-client rate limit.
type RecoveryConfig struct {
	TokenLifetime       time.Duration
	RequireIPMatch      bool
	RequireUAMatch      bool
	RateLimitPerMinute  float64
	RateLimitBurst      int
}

func (c *RecoveryConfig) applyDefaults() {
	if c.TokenLifetime <= 0 {
		c.TokenLifetime = 5 * time.Minute
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 5
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 3
	}
}

// RecoveryManager issues and redeems RecoveryTokens.
type RecoveryManager struct {
	cfg RecoveryConfig

	mu       sync.Mutex
	tokens   map[string]*RecoveryToken
	limiters map[string]*rate.Limiter // keyed by client id
}

// NewRecoveryManager builds a RecoveryManager.
func NewRecoveryManager(cfg RecoveryConfig) *RecoveryManager {
	cfg.applyDefaults()
	return &RecoveryManager{
		cfg:      cfg,
		tokens:   make(map[string]*RecoveryToken),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (m *RecoveryManager) limiterFor(clientID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[clientID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(m.cfg.RateLimitPerMinute/60.0), m.cfg.RateLimitBurst)
		m.limiters[clientID] = l
	}
	return l
}

// Issue mints a single-use, 32-random-byte-hex recovery token bound to
// sessionID and the client's current fingerprint/IP/user-agent.
func (m *RecoveryManager) Issue(sessionID, fingerprint, originalIP, originalUA string) (*RecoveryToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, tunnelerr.NewSecurityError("failed to generate recovery token", err)
	}
	now := time.Now()
	token := &RecoveryToken{
		Token:       hex.EncodeToString(buf),
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		OriginalIP:  originalIP,
		OriginalUA:  originalUA,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.cfg.TokenLifetime),
	}

	m.mu.Lock()
	m.tokens[token.Token] = token
	m.mu.Unlock()
	return token, nil
}

// Redeem validates clientID's rate limit, then the token's existence,
// non-expiry, single-use, and (when configured) current IP/user-agent
// match, returning the original session id on success.
func (m *RecoveryManager) Redeem(clientID, tokenValue, currentIP, currentUA string) (string, error) {
	if !m.limiterFor(clientID).Allow() {
		return "", tunnelerr.NewSecurityError("recovery token request rate limit exceeded", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenValue]
	if !ok {
		return "", tunnelerr.NewSecurityError("recovery token not found", nil)
	}
	if token.Used {
		return "", tunnelerr.NewSecurityError("recovery token already used", nil)
	}
	if time.Now().After(token.ExpiresAt) {
		return "", tunnelerr.NewSecurityError("recovery token expired", nil)
	}
	if m.cfg.RequireIPMatch && token.OriginalIP != "" && token.OriginalIP != currentIP {
		return "", tunnelerr.NewSecurityError("recovery token IP mismatch", nil)
	}
	if m.cfg.RequireUAMatch && token.OriginalUA != "" && token.OriginalUA != currentUA {
		return "", tunnelerr.NewSecurityError("recovery token user-agent mismatch", nil)
	}

	token.Used = true
	return token.SessionID, nil
}
