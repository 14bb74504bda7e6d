package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

func TestNewSyncMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewSyncMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates metrics with SDK provider", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewSyncMetrics(mp)
		require.NoError(t, err)
		require.NotNil(t, metrics)
		assert.NotNil(t, metrics.syncDuration)
		assert.NotNil(t, metrics.syncAttempts)
		assert.NotNil(t, metrics.accountsSyncing)
	})
}

func TestSyncMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	account := providers.AccountID("user@example.com")

	var metrics *SyncMetrics
	// Should not panic
	metrics.RecordSyncDuration(ctx, account, "initial", time.Second, true)
	metrics.RecordAttempt(ctx, account, "initial")
	metrics.SyncStarted(ctx)
	metrics.SyncFinished(ctx)
}

func TestSyncMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	account := providers.AccountID("user@example.com")

	metrics.SyncStarted(ctx)
	metrics.RecordAttempt(ctx, account, "initial")
	metrics.RecordSyncDuration(ctx, account, "initial", 2*time.Second, true)
	metrics.SyncFinished(ctx)

	var rm metricdata.ResourceMetrics
	err = reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	require.NotEmpty(t, rm.ScopeMetrics)

	var foundScope bool
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name == SyncMetricsMeterName {
			foundScope = true
			assert.NotEmpty(t, scope.Metrics)
		}
	}
	assert.True(t, foundScope, "expected to find sync metrics scope")
}
