package remoteidentity

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/usercontext"
)

// RemoteUserContext joins the local UserContext with a per-request
// ClientIdentity, deriving the isolation key and remote session id that
// every downstream isolated-session and token-store component keys on.
type RemoteUserContext struct {
	Local           *usercontext.UserContext
	Identity        ClientIdentity
	SessionNonce    string
	IsolationKey    string
	RemoteSessionID string
	Dir             string
}

// New builds a RemoteUserContext for one client connection, creating its
// per-client subdirectory <session_dir>/remote_sessions/<isolation_key>/
// with 0700 permissions.
func New(local *usercontext.UserContext, identity ClientIdentity) (*RemoteUserContext, error) {
	nonce := uuid.NewString()
	key := IsolationKey(uint64(local.UID), identity.ClientIP, identity.ClientHostname, identity.ClientUsername, nonce)
	sessionID := RemoteSessionID(identity, nonce)

	dir := filepath.Join(local.SessionDir, "remote_sessions", key)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	return &RemoteUserContext{
		Local:           local,
		Identity:        identity,
		SessionNonce:    nonce,
		IsolationKey:    key,
		RemoteSessionID: sessionID,
		Dir:             dir,
	}, nil
}

// IsolationKey is SHA-256(local-uid ‖ client-ip ‖ client-hostname ‖
// client-username ‖ session-nonce), truncated to 48 hex characters.
func IsolationKey(localUID uint64, clientIP, clientHostname, clientUsername, sessionNonce string) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatUint(localUID, 10)))
	h.Write([]byte("\x00"))
	h.Write([]byte(clientIP))
	h.Write([]byte("\x00"))
	h.Write([]byte(clientHostname))
	h.Write([]byte("\x00"))
	h.Write([]byte(clientUsername))
	h.Write([]byte("\x00"))
	h.Write([]byte(sessionNonce))
	return hex.EncodeToString(h.Sum(nil))[:48]
}

// RemoteSessionID is SHA-256 over the client identity, a fresh UUID, and
// the supplied nonce, truncated to 32 hex characters.
func RemoteSessionID(identity ClientIdentity, nonce string) string {
	h := sha256.New()
	h.Write([]byte(identity.ClientIP))
	h.Write([]byte("\x00"))
	h.Write([]byte(identity.ClientHostname))
	h.Write([]byte("\x00"))
	h.Write([]byte(identity.UserAgent))
	h.Write([]byte("\x00"))
	h.Write([]byte(nonce))
	h.Write([]byte("\x00"))
	h.Write([]byte(uuid.NewString()))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

