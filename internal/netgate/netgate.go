// Package netgate answers a single question for the orchestrator: is a
// usable network path to the internet available right now.
package netgate

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/skylarkhq/skylark-sync/internal/config"
)

const (
	defaultProbeURL     = "https://connectivitycheck.gstatic.com/generate_204"
	defaultProbeTimeout = 3 * time.Second

	// probeCacheTTL bounds how long a probe verdict is reused. Keeps
	// repeated StartSyncIfNeeded calls from hammering the probe endpoint.
	probeCacheTTL = 5 * time.Second
)

// Gate reports whether a usable network path is currently available.
// Implementations must be side-effect free from the caller's point of
// view and return false conservatively when reachability cannot be
// determined.
type Gate interface {
	IsAvailable(ctx context.Context) bool
}

// probeGate checks reachability by issuing a short HEAD request against
// a connectivity endpoint. A link merely being up is not enough; the
// request has to complete.
type probeGate struct {
	client   *http.Client
	probeURL string

	mu          sync.Mutex
	lastVerdict bool
	lastProbe   time.Time
}

// New creates a probe-based gate from the network configuration.
// Invalid or missing settings fall back to defaults; the config package
// validates them beforehand.
func New(cfg config.NetworkConfig) Gate {
	probeURL := cfg.ProbeURL
	if probeURL == "" {
		probeURL = defaultProbeURL
	}

	timeout := defaultProbeTimeout
	if cfg.ProbeTimeout != "" {
		if d, err := time.ParseDuration(cfg.ProbeTimeout); err == nil && d > 0 {
			timeout = d
		}
	}

	return &probeGate{
		client: &http.Client{
			Timeout: timeout,
		},
		probeURL: probeURL,
	}
}

// IsAvailable probes the connectivity endpoint, reusing a recent
// verdict when one is available
func (g *probeGate) IsAvailable(ctx context.Context) bool {
	g.mu.Lock()
	if time.Since(g.lastProbe) < probeCacheTTL {
		verdict := g.lastVerdict
		g.mu.Unlock()
		return verdict
	}
	g.mu.Unlock()

	verdict := g.probe(ctx)

	g.mu.Lock()
	g.lastVerdict = verdict
	g.lastProbe = time.Now()
	g.mu.Unlock()

	return verdict
}

func (g *probeGate) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.probeURL, nil)
	if err != nil {
		slog.Debug("Failed to build connectivity probe request", "error", err)
		return false
	}

	resp, err := g.client.Do(req)
	if err != nil {
		slog.Debug("Connectivity probe failed", "url", g.probeURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	// Any completed response proves reachability, including redirects
	// from captive portals being rewritten upstream; reserve false for
	// server-side failure.
	return resp.StatusCode < http.StatusInternalServerError
}
