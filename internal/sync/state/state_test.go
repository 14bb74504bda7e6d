package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarkhq/skylark-sync/internal/config"
	"github.com/skylarkhq/skylark-sync/internal/providers"
	"github.com/skylarkhq/skylark-sync/internal/status"
)

const testAccount = providers.AccountID("user@example.com")

func newTestService(t *testing.T, accounts ...string) AccountStateService {
	t.Helper()

	svc := NewAccountStateService(status.NewFilePersistence(t.TempDir()))
	cfgs := make([]config.AccountConfig, 0, len(accounts))
	for _, id := range accounts {
		cfgs = append(cfgs, config.AccountConfig{ID: id})
	}
	require.NoError(t, svc.Initialize(context.Background(), cfgs))
	return svc
}

func TestInitialize_DefaultsToIdle(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, string(testAccount))

	st, err := svc.GetStatus(context.Background(), testAccount)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, status.SyncPhaseIdle, st.Phase)
}

func TestInitialize_RecoversInterruptedSync(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	persistence := status.NewFilePersistence(dir)
	ctx := context.Background()

	// Simulate a previous run that died mid-sync
	require.NoError(t, persistence.SaveStatus(ctx, testAccount, &status.AccountStatus{
		Phase: status.SyncPhaseSyncing,
	}))

	svc := NewAccountStateService(persistence)
	require.NoError(t, svc.Initialize(ctx, []config.AccountConfig{{ID: string(testAccount)}}))

	st, err := svc.GetStatus(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseIdle, st.Phase)
	assert.Equal(t, "Previous sync was interrupted", st.Message)

	// The correction must be persisted as well
	persisted, err := persistence.LoadStatus(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseIdle, persisted.Phase)
}

func TestGetStatus_ReturnsCopy(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, string(testAccount))
	ctx := context.Background()

	st, err := svc.GetStatus(ctx, testAccount)
	require.NoError(t, err)

	// Mutating the snapshot must not leak into the service
	st.Phase = status.SyncPhaseError
	again, err := svc.GetStatus(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseIdle, again.Phase)
}

func TestGetStatus_UnknownAccount(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, string(testAccount))

	st, err := svc.GetStatus(context.Background(), "stranger@example.com")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestUpdateStatusAtomically(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, string(testAccount))
	ctx := context.Background()

	// Idle -> Syncing transition succeeds
	updated, err := svc.UpdateStatusAtomically(ctx, testAccount, func(st *status.AccountStatus) bool {
		if st.Phase == status.SyncPhaseSyncing {
			return false
		}
		st.Phase = status.SyncPhaseSyncing
		return true
	})
	require.NoError(t, err)
	assert.True(t, updated)

	// A second identical transition is rejected by the test function
	updated, err = svc.UpdateStatusAtomically(ctx, testAccount, func(st *status.AccountStatus) bool {
		if st.Phase == status.SyncPhaseSyncing {
			return false
		}
		st.Phase = status.SyncPhaseSyncing
		return true
	})
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestUpdateStatusAtomically_UnknownAccount(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, string(testAccount))

	_, err := svc.UpdateStatusAtomically(context.Background(), "stranger@example.com",
		func(*status.AccountStatus) bool { return true })
	require.Error(t, err)
}

func TestFlags_Recomputation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "a@example.com", "b@example.com")
	ctx := context.Background()

	flags := svc.Flags()
	assert.False(t, flags.AnySyncing)
	assert.False(t, flags.AnySynced)
	assert.False(t, flags.NoNetwork)

	require.NoError(t, svc.UpdateStatus(ctx, "a@example.com", &status.AccountStatus{Phase: status.SyncPhaseSyncing}))
	assert.True(t, svc.Flags().AnySyncing)

	require.NoError(t, svc.UpdateStatus(ctx, "a@example.com", &status.AccountStatus{Phase: status.SyncPhaseSynced}))
	flags = svc.Flags()
	assert.False(t, flags.AnySyncing)
	assert.True(t, flags.AnySynced)

	svc.SetNoNetwork(true)
	assert.True(t, svc.Flags().NoNetwork)
	svc.SetNoNetwork(false)
	assert.False(t, svc.Flags().NoNetwork)
}

func TestSubscribe_ReceivesLatestFlags(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, string(testAccount))
	ctx := context.Background()

	ch := svc.Subscribe()

	require.NoError(t, svc.UpdateStatus(ctx, testAccount, &status.AccountStatus{Phase: status.SyncPhaseSyncing}))
	require.NoError(t, svc.UpdateStatus(ctx, testAccount, &status.AccountStatus{Phase: status.SyncPhaseSynced}))

	// The channel holds the most recent flags, not an intermediate value
	flags := <-ch
	assert.True(t, flags.AnySynced)
	assert.False(t, flags.AnySyncing)
}

func TestDeleteStatus(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, string(testAccount))
	ctx := context.Background()

	require.NoError(t, svc.UpdateStatus(ctx, testAccount, &status.AccountStatus{Phase: status.SyncPhaseSynced}))
	require.NoError(t, svc.DeleteStatus(ctx, testAccount))

	st, err := svc.GetStatus(ctx, testAccount)
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.False(t, svc.Flags().AnySynced)
}

func TestEnsureAccount_CreatesOnFirstUse(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAccount(ctx, testAccount))

	st, err := svc.GetStatus(ctx, testAccount)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, status.SyncPhaseIdle, st.Phase)

	// A second call must not reset an existing record
	_, err = svc.UpdateStatusAtomically(ctx, testAccount, func(st *status.AccountStatus) bool {
		st.Phase = status.SyncPhaseSynced
		return true
	})
	require.NoError(t, err)
	require.NoError(t, svc.EnsureAccount(ctx, testAccount))

	st, err = svc.GetStatus(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseSynced, st.Phase)
}
