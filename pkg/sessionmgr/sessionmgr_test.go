package sessionmgr

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/secretval"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/tokenstore"
	"github.com/MagicBeansAI/magictunnel-sub000/pkg/usercontext"
)

func testUserContext(t *testing.T) *usercontext.UserContext {
	t.Helper()
	dir := t.TempDir()
	return &usercontext.UserContext{
		Username:   "alice",
		Hostname:   "box",
		UID:        1,
		SessionDir: dir,
		Backend:    usercontext.BackendFilesystem,
	}
}

func TestRecoverSessions_MarksFailedProviderButContinues(t *testing.T) {
	uc := testUserContext(t)
	store := tokenstore.NewMemoryStore()

	require.NoError(t, store.StoreToken(tokenstore.Key(uc.GetUniqueUserID(), "github", "u1"), tokenstore.TokenData{
		AccessToken: secretval.New("tok-github"),
		Provider:    "github",
		UserID:      "u1",
	}))
	require.NoError(t, store.StoreToken(tokenstore.Key(uc.GetUniqueUserID(), "gitlab", "u2"), tokenstore.TokenData{
		AccessToken: secretval.New("tok-gitlab"),
		Provider:    "gitlab",
		UserID:      "u2",
	}))

	probe := func(_ context.Context, provider, _ string) error {
		if provider == "gitlab" {
			return errors.New("401 unauthorized")
		}
		return nil
	}

	mgr := New(uc, store, probe, Config{})
	result, err := mgr.RecoverSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.FailedProviders, "gitlab")
}

func TestSystemID_MismatchResetsState(t *testing.T) {
	uc := testUserContext(t)
	foreign := SessionState{SystemID: "not-this-system", Version: 1}
	data, err := json.Marshal(foreign)
	require.NoError(t, err)

	path := uc.SessionDir + "/" + uc.Hostname + "_session_state.json"
	require.NoError(t, os.WriteFile(path, data, 0o600))

	store := tokenstore.NewMemoryStore()
	mgr := New(uc, store, func(context.Context, string, string) error { return nil }, Config{})
	assert.Equal(t, SystemID(uc), mgr.State().SystemID)
}

func TestRecoverSessions_RespectsMaxAttempts(t *testing.T) {
	uc := testUserContext(t)
	store := tokenstore.NewMemoryStore()
	calls := 0
	probe := func(context.Context, string, string) error {
		calls++
		return nil
	}
	mgr := New(uc, store, probe, Config{MaxRecoveryAttempts: 1})

	_, err := mgr.RecoverSessions(context.Background())
	require.NoError(t, err)
	_, err = mgr.RecoverSessions(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, mgr.State().RecoveryAttempts, 1)
}

func TestPeriodicValidation_StopsCleanly(t *testing.T) {
	uc := testUserContext(t)
	store := tokenstore.NewMemoryStore()
	mgr := New(uc, store, func(context.Context, string, string) error { return nil }, Config{ValidationIntervalMinutes: 1})

	stop := mgr.StartPeriodicValidation(context.Background())
	time.Sleep(10 * time.Millisecond)
	stop()
}
