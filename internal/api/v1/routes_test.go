package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarkhq/skylark-sync/internal/config"
	"github.com/skylarkhq/skylark-sync/internal/providers"
	"github.com/skylarkhq/skylark-sync/internal/providers/fake"
	"github.com/skylarkhq/skylark-sync/internal/status"
	syncpkg "github.com/skylarkhq/skylark-sync/internal/sync"
	"github.com/skylarkhq/skylark-sync/internal/sync/state"
)

const testAccount = "user@example.com"

type stubGate struct {
	available atomic.Bool
}

func (g *stubGate) IsAvailable(_ context.Context) bool {
	return g.available.Load()
}

type testEnv struct {
	router http.Handler
	orch   *syncpkg.Orchestrator
	mail   *fake.MailProvider
	gate   *stubGate
	state  state.AccountStateService
}

func newTestEnv(t *testing.T, mail *fake.MailProvider) *testEnv {
	t.Helper()
	ctx := context.Background()

	stateSvc := state.NewAccountStateService(status.NewFilePersistence(t.TempDir()))
	require.NoError(t, stateSvc.Initialize(ctx, []config.AccountConfig{{ID: testAccount}}))

	gate := &stubGate{}
	gate.available.Store(true)

	tuning := config.DefaultTuning()
	tuning.ManualTimeout = 5 * time.Second
	orch := syncpkg.NewOrchestrator(tuning, stateSvc, gate, mail, mail, fake.AllDomains())
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(shutdownCtx)
	})

	return &testEnv{
		router: Router(orch, stateSvc),
		orch:   orch,
		mail:   mail,
		gate:   gate,
		state:  stateSvc,
	}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestGetSyncStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fake.MailProvider{})
	rec := env.do(http.MethodGet, "/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response SyncStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Accounts, 1)
	assert.Equal(t, providers.AccountID(testAccount), response.Accounts[0].Account)
	assert.Equal(t, status.SyncPhaseIdle, response.Accounts[0].Status.Phase)
	assert.False(t, response.Flags.AnySyncing)
}

func TestGetAccountStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fake.MailProvider{})
	rec := env.do(http.MethodGet, "/accounts/"+testAccount)

	require.Equal(t, http.StatusOK, rec.Code)

	var response AccountStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, providers.AccountID(testAccount), response.Account)
}

func TestGetAccountStatusUnknownAccount(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fake.MailProvider{})
	rec := env.do(http.MethodGet, "/accounts/stranger@example.com")

	require.Equal(t, http.StatusNotFound, rec.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Unknown account", response.Error)
}

func TestStartSyncAccepted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t, &fake.MailProvider{})
	rec := env.do(http.MethodPost, "/accounts/"+testAccount)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var response AcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "accepted", response.Status)

	require.Eventually(t, func() bool {
		return env.orch.IsSyncedAccount(ctx, testAccount)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, env.mail.SyncFoldersCalls())
}

func TestManualSyncBlocksUntilComplete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fake.MailProvider{})
	rec := env.do(http.MethodPost, "/accounts/"+testAccount+"/manual")

	require.Equal(t, http.StatusOK, rec.Code)

	var response AccountStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, status.SyncPhaseSynced, response.Status.Phase)
	assert.True(t, env.mail.ForcedFullResync("inbox"))
}

func TestManualSyncConflictWhileSyncing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t, &fake.MailProvider{Block: true})

	// Occupy the account with a blocked manual sync
	env.orch.ManualSync(ctx, testAccount, nil)
	require.Eventually(t, func() bool {
		return env.orch.IsSyncingAccount(ctx, testAccount)
	}, 5*time.Second, 10*time.Millisecond)

	rec := env.do(http.MethodPost, "/accounts/"+testAccount+"/manual")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestManualSyncNoNetwork(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fake.MailProvider{})
	env.gate.available.Store(false)

	rec := env.do(http.MethodPost, "/accounts/"+testAccount+"/manual")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, env.mail.SyncFoldersCalls())
}

func TestResetAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t, &fake.MailProvider{})
	env.do(http.MethodPost, "/accounts/"+testAccount)
	require.Eventually(t, func() bool {
		return env.orch.IsSyncedAccount(ctx, testAccount)
	}, 5*time.Second, 10*time.Millisecond)

	rec := env.do(http.MethodDelete, "/accounts/"+testAccount)
	require.Equal(t, http.StatusOK, rec.Code)

	st, err := env.state.GetStatus(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseIdle, st.Phase)
}

func TestResetAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t, &fake.MailProvider{})
	env.do(http.MethodPost, "/accounts/"+testAccount)
	require.Eventually(t, func() bool {
		return env.orch.IsSyncedAccount(ctx, testAccount)
	}, 5*time.Second, 10*time.Millisecond)

	rec := env.do(http.MethodDelete, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.orch.IsSynced())
}
