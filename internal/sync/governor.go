package sync

import (
	"sync"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

// Admission is the verdict the retry governor gives a sync attempt.
type Admission int

const (
	// Admitted means the attempt may proceed and has been counted
	Admitted Admission = iota
	// AlreadyMaxedOut means the per-account attempt cap is reached
	AlreadyMaxedOut
)

// Governor caps consecutive failed sync attempts per account so a
// persistently broken account cannot retry forever. The counter only
// clears on a successful sync or an explicit reset; exhausting the cap
// does not clear it.
type Governor struct {
	mu          sync.Mutex
	maxAttempts int
	attempts    map[providers.AccountID]int
}

// NewGovernor creates a governor allowing maxAttempts attempts per
// account between successes.
func NewGovernor(maxAttempts int) *Governor {
	return &Governor{
		maxAttempts: maxAttempts,
		attempts:    make(map[providers.AccountID]int),
	}
}

// TryBeginAttempt counts and admits one sync attempt for the account,
// unless the cap is already reached.
func (g *Governor) TryBeginAttempt(account providers.AccountID) Admission {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.attempts[account] >= g.maxAttempts {
		return AlreadyMaxedOut
	}
	g.attempts[account]++
	return Admitted
}

// Exhausted reports whether the account has no attempts left, without
// consuming one.
func (g *Governor) Exhausted(account providers.AccountID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[account] >= g.maxAttempts
}

// Attempts returns the number of attempts consumed since the last
// success or reset.
func (g *Governor) Attempts(account providers.AccountID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[account]
}

// ResetOnSuccess clears the account's attempt counter after a
// successful sync.
func (g *Governor) ResetOnSuccess(account providers.AccountID) {
	g.Reset(account)
}

// Reset clears the account's attempt counter unconditionally.
func (g *Governor) Reset(account providers.AccountID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, account)
}

// ResetAll clears every account's attempt counter.
func (g *Governor) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts = make(map[providers.AccountID]int)
}
