package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarkhq/skylark-sync/internal/config"
	"github.com/skylarkhq/skylark-sync/internal/providers/fake"
	"github.com/skylarkhq/skylark-sync/internal/status"
	"github.com/skylarkhq/skylark-sync/internal/sync"
	"github.com/skylarkhq/skylark-sync/internal/sync/state"
)

type alwaysOnGate struct{}

func (alwaysOnGate) IsAvailable(_ context.Context) bool { return true }

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	stateSvc := state.NewAccountStateService(status.NewFilePersistence(t.TempDir()))
	require.NoError(t, stateSvc.Initialize(context.Background(), []config.AccountConfig{{ID: "user@example.com"}}))

	mail := &fake.MailProvider{}
	orch := sync.NewOrchestrator(config.DefaultTuning(), stateSvc, alwaysOnGate{}, mail, mail, fake.AllDomains())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	return NewServer(orch, stateSvc)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestSyncRoutesMounted(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user@example.com")
}
