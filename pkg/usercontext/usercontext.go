// Package usercontext resolves the cross-platform local identity the
// authentication core runs as: the system username, home directory,
// hostname, a synthesized uid where the platform has none, the per-user
// session directory, and the secret-storage backend this machine should
// use. It is constructed once at process start and threaded through every
// other component — there is no global UserContext.
package usercontext

import (
	"fmt"
	"hash/fnv"
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tunnellog"
)

// StorageBackend identifies which secret store implementation a
// UserContext prefers.
type StorageBackend string

const (
	BackendKeychain         StorageBackend = "keychain"
	BackendCredentialManager StorageBackend = "credential_manager"
	BackendSecretService    StorageBackend = "secret_service"
	BackendFilesystem       StorageBackend = "filesystem"
)

// TestBackendOverrideEnv is the test-only environment variable that forces
// a specific backend, for deterministic tests independent of the host OS.
const TestBackendOverrideEnv = "MAGICTUNNEL_TEST_STORAGE_BACKEND"

const sessionsDirName = ".magictunnel/sessions"

// UserContext is the process-wide, immutable local identity.
type UserContext struct {
	Username   string
	HomeDir    string
	UID        uint32
	Hostname   string
	SessionDir string
	Backend    StorageBackend
}

// New resolves and returns the local UserContext, creating the per-user
// session directory (0700 on Unix) if it does not already exist.
func New() (*UserContext, error) {
	username := resolveUsername()
	home := resolveHomeDir()
	uid := resolveUID(username)
	hostname := resolveHostname()
	backend := resolveBackend()

	sessionDir := filepath.Join(home, sessionsDirName)
	if err := ensureSessionDir(sessionDir); err != nil {
		return nil, fmt.Errorf("failed to create session directory %q: %w", sessionDir, err)
	}

	return &UserContext{
		Username:   username,
		HomeDir:    home,
		UID:        uid,
		Hostname:   hostname,
		SessionDir: sessionDir,
		Backend:    backend,
	}, nil
}

// GetUniqueUserID returns the stable identifier used as a salt for storage
// keys: "<username>@<hostname>:<uid>".
func (u *UserContext) GetUniqueUserID() string {
	return fmt.Sprintf("%s@%s:%d", u.Username, u.Hostname, u.UID)
}

func resolveUsername() string {
	if cur, err := user.Current(); err == nil && cur.Username != "" {
		return cur.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	return "unknown"
}

func resolveHomeDir() string {
	if cur, err := user.Current(); err == nil && cur.HomeDir != "" {
		return cur.HomeDir
	}
	if v := os.Getenv("HOME"); v != "" {
		return v
	}
	if v := os.Getenv("USERPROFILE"); v != "" {
		return v
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// resolveUID returns the platform uid on Unix-like systems, or a stable
// 32-bit synthetic uid derived from the username on platforms without one
// (e.g. Windows).
func resolveUID(username string) uint32 {
	if runtime.GOOS != "windows" {
		if cur, err := user.Current(); err == nil {
			var uid uint32
			if _, err := fmt.Sscanf(cur.Uid, "%d", &uid); err == nil {
				return uid
			}
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return h.Sum32()
}

func resolveHostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	if v := os.Getenv("HOSTNAME"); v != "" {
		return v
	}
	return "localhost"
}

func resolveBackend() StorageBackend {
	if override := os.Getenv(TestBackendOverrideEnv); override != "" {
		switch StorageBackend(override) {
		case BackendFilesystem, BackendKeychain, BackendCredentialManager, BackendSecretService:
			return StorageBackend(override)
		default:
			tunnellog.Warnf("ignoring unrecognized %s value: %s", TestBackendOverrideEnv, override)
		}
	}

	switch runtime.GOOS {
	case "darwin":
		return BackendKeychain
	case "windows":
		return BackendCredentialManager
	case "linux":
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			return BackendSecretService
		}
		return BackendFilesystem
	default:
		return BackendFilesystem
	}
}

func ensureSessionDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}
