package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarkhq/skylark-sync/internal/config"
)

func TestNewBackendDefaultsToFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend, err := NewBackend(ctx, &config.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Persistence.SaveStatus(ctx, testAccount, &AccountStatus{
		Phase: SyncPhaseSynced,
	}))
	st, err := backend.Persistence.LoadStatus(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, SyncPhaseSynced, st.Phase)
}

func TestNewBackendCreatesDataDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir() + "/nested/state"
	backend, err := NewBackend(context.Background(), &config.Config{DataDir: dir})
	require.NoError(t, err)
	defer backend.Close()

	assert.DirExists(t, dir)
}
