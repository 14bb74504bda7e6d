// Package telemetry provides OpenTelemetry instrumentation for the sync daemon.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/skylarkhq/skylark-sync/sync"
)

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration    metric.Float64Histogram
	syncAttempts    metric.Int64Counter
	accountsSyncing metric.Int64UpDownCounter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"skylark_sync_duration_seconds",
		metric.WithDescription("Duration of sync cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	syncAttempts, err := meter.Int64Counter(
		"skylark_sync_attempts_total",
		metric.WithDescription("Number of sync attempts started"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	accountsSyncing, err := meter.Int64UpDownCounter(
		"skylark_sync_accounts_syncing",
		metric.WithDescription("Number of accounts currently syncing"),
		metric.WithUnit("{account}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:    syncDuration,
		syncAttempts:    syncAttempts,
		accountsSyncing: accountsSyncing,
	}, nil
}

// RecordSyncDuration records the duration of a finished sync cycle
func (m *SyncMetrics) RecordSyncDuration(
	ctx context.Context, account providers.AccountID, mode string, duration time.Duration, success bool,
) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("account", string(account)),
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAttempt counts one started sync attempt
func (m *SyncMetrics) RecordAttempt(ctx context.Context, account providers.AccountID, mode string) {
	if m == nil || m.syncAttempts == nil {
		return
	}

	m.syncAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("account", string(account)),
		attribute.String("mode", mode),
	))
}

// SyncStarted moves the syncing-accounts gauge up by one
func (m *SyncMetrics) SyncStarted(ctx context.Context) {
	if m == nil || m.accountsSyncing == nil {
		return
	}
	m.accountsSyncing.Add(ctx, 1)
}

// SyncFinished moves the syncing-accounts gauge down by one
func (m *SyncMetrics) SyncFinished(ctx context.Context) {
	if m == nil || m.accountsSyncing == nil {
		return
	}
	m.accountsSyncing.Add(ctx, -1)
}
