package netgate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarkhq/skylark-sync/internal/config"
)

func TestProbeGate_Available(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gate := New(config.NetworkConfig{ProbeURL: srv.URL})
	assert.True(t, gate.IsAvailable(context.Background()))
}

func TestProbeGate_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gate := New(config.NetworkConfig{ProbeURL: srv.URL})
	assert.False(t, gate.IsAvailable(context.Background()))
}

func TestProbeGate_Unreachable(t *testing.T) {
	t.Parallel()

	// Closed server: the probe must fail and the gate must answer false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	url := srv.URL
	srv.Close()

	gate := New(config.NetworkConfig{ProbeURL: url, ProbeTimeout: "500ms"})
	assert.False(t, gate.IsAvailable(context.Background()))
}

func TestProbeGate_CachesVerdict(t *testing.T) {
	t.Parallel()

	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gate := New(config.NetworkConfig{ProbeURL: srv.URL})

	ctx := context.Background()
	for range 5 {
		require.True(t, gate.IsAvailable(ctx))
	}

	// All calls inside the cache window share one probe
	assert.Equal(t, int32(1), probes.Load())
}

func TestProbeGate_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gate := New(config.NetworkConfig{ProbeURL: srv.URL})
	assert.False(t, gate.IsAvailable(ctx))
}
