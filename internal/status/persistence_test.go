package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

const testAccount = providers.AccountID("user@example.com")

func TestFilePersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	persistence := NewFilePersistence(tmpDir)
	require.NotNil(t, persistence)

	now := time.Now()
	testStatus := &AccountStatus{
		Phase:                SyncPhaseSynced,
		Message:              "Sync completed successfully",
		AttemptCount:         1,
		LastAttempt:          &now,
		LastSyncTime:         &now,
		InitialSyncCompleted: true,
	}

	ctx := context.Background()
	err := persistence.SaveStatus(ctx, testAccount, testStatus)
	require.NoError(t, err)

	// Verify file was created
	expectedPath := filepath.Join(tmpDir, string(testAccount), StatusFileName)
	_, err = os.Stat(expectedPath)
	require.NoError(t, err)

	loaded, err := persistence.LoadStatus(ctx, testAccount)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, testStatus.Phase, loaded.Phase)
	require.Equal(t, testStatus.Message, loaded.Message)
	require.Equal(t, testStatus.AttemptCount, loaded.AttemptCount)
	require.True(t, loaded.InitialSyncCompleted)
	require.False(t, loaded.StorageRecreated)
}

func TestFilePersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	persistence := NewFilePersistence(tmpDir)

	// Load non-existent status should return empty status
	ctx := context.Background()
	loaded, err := persistence.LoadStatus(ctx, testAccount)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, SyncPhase(""), loaded.Phase)
	require.False(t, loaded.InitialSyncCompleted)
}

func TestFilePersistence_UpdateStatus(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	persistence := NewFilePersistence(tmpDir)
	ctx := context.Background()

	err := persistence.SaveStatus(ctx, testAccount, &AccountStatus{
		Phase:   SyncPhaseSyncing,
		Message: "Sync in progress",
	})
	require.NoError(t, err)

	// Overwrite with a newer status and confirm the update took
	now := time.Now()
	err = persistence.SaveStatus(ctx, testAccount, &AccountStatus{
		Phase:                SyncPhaseSynced,
		Message:              "Sync completed successfully",
		LastSyncTime:         &now,
		InitialSyncCompleted: true,
	})
	require.NoError(t, err)

	loaded, err := persistence.LoadStatus(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, SyncPhaseSynced, loaded.Phase)
	require.True(t, loaded.InitialSyncCompleted)
	require.NotNil(t, loaded.LastSyncTime)
}

func TestFilePersistence_LoadAllStatus(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	persistence := NewFilePersistence(tmpDir)
	ctx := context.Background()

	accounts := []providers.AccountID{"one@example.com", "two@example.com"}
	for _, account := range accounts {
		err := persistence.SaveStatus(ctx, account, &AccountStatus{Phase: SyncPhaseSynced})
		require.NoError(t, err)
	}

	all, err := persistence.LoadAllStatus(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, account := range accounts {
		require.Contains(t, all, account)
		require.Equal(t, SyncPhaseSynced, all[account].Phase)
	}
}

func TestFilePersistence_LoadAllStatusEmptyDir(t *testing.T) {
	t.Parallel()

	persistence := NewFilePersistence(filepath.Join(t.TempDir(), "does-not-exist"))

	all, err := persistence.LoadAllStatus(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestFilePersistence_DeleteStatus(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	persistence := NewFilePersistence(tmpDir)
	ctx := context.Background()

	err := persistence.SaveStatus(ctx, testAccount, &AccountStatus{Phase: SyncPhaseSynced})
	require.NoError(t, err)

	err = persistence.DeleteStatus(ctx, testAccount)
	require.NoError(t, err)

	// After deletion the account reads back as first-run
	loaded, err := persistence.LoadStatus(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, SyncPhase(""), loaded.Phase)
}
