// Package state provides the shared per-account sync state table and
// the aggregate flags derived from it. It is the only mutable state
// shared between the orchestrator's tasks and UI-facing readers.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/skylarkhq/skylark-sync/internal/config"
	"github.com/skylarkhq/skylark-sync/internal/providers"
	"github.com/skylarkhq/skylark-sync/internal/status"
)

// Flags is the process-wide derived state consumed by the presentation
// layer. It is recomputed from the per-account table on every
// transition and never mutated directly by callers.
type Flags struct {
	// AnySyncing is true while at least one account is in phase Syncing
	AnySyncing bool `json:"anySyncing"`

	// AnySynced is true once at least one account reached phase Synced
	AnySynced bool `json:"anySynced"`

	// NoNetwork is true after a sync request was gated on missing
	// connectivity; cleared by the next gated request that passes or by
	// a reset
	NoNetwork bool `json:"noNetwork"`
}

// AccountStateService owns the per-account status table. All mutation
// funnels through it so that cached state, persisted state and the
// aggregate flags can never diverge.
type AccountStateService interface {
	// Initialize loads or creates the status record of every configured
	// account. Records stuck in Syncing from an interrupted previous
	// run are reset to Idle.
	Initialize(ctx context.Context, accounts []config.AccountConfig) error

	// EnsureAccount creates the account's status record on first use.
	// Existing records are left untouched.
	EnsureAccount(ctx context.Context, account providers.AccountID) error

	// GetStatus returns a copy of the account's status, or nil if the
	// account is unknown
	GetStatus(ctx context.Context, account providers.AccountID) (*status.AccountStatus, error)

	// ListStatuses returns copies of all account statuses keyed by account
	ListStatuses(ctx context.Context) (map[providers.AccountID]*status.AccountStatus, error)

	// UpdateStatus persists and caches the given status, then
	// recomputes the aggregate flags
	UpdateStatus(ctx context.Context, account providers.AccountID, st *status.AccountStatus) error

	// UpdateStatusAtomically runs testAndUpdateFn under the table lock.
	// The function may mutate the status in place and returns whether
	// the mutation should be kept; a kept mutation is persisted and the
	// aggregate flags are recomputed. Returns whether the update was kept.
	UpdateStatusAtomically(
		ctx context.Context,
		account providers.AccountID,
		testAndUpdateFn func(st *status.AccountStatus) bool,
	) (bool, error)

	// DeleteStatus removes the account's record entirely
	DeleteStatus(ctx context.Context, account providers.AccountID) error

	// Flags returns the current aggregate flags
	Flags() Flags

	// SetNoNetwork sets the no-network flag and publishes the change
	SetNoNetwork(v bool)

	// Subscribe returns a channel that receives the aggregate flags
	// after every recomputation. Slow subscribers miss intermediate
	// values; the latest flags are always re-readable via Flags.
	Subscribe() <-chan Flags
}

type accountStateService struct {
	persistence status.Persistence

	// Thread-safe status management (per-account)
	mu             sync.RWMutex
	cachedStatuses map[providers.AccountID]*status.AccountStatus
	noNetwork      bool
	subscribers    []chan Flags
}

// NewAccountStateService creates a state service over the given
// persistence backend
func NewAccountStateService(persistence status.Persistence) AccountStateService {
	return &accountStateService{
		persistence:    persistence,
		cachedStatuses: make(map[providers.AccountID]*status.AccountStatus),
	}
}

func (s *accountStateService) Initialize(ctx context.Context, accounts []config.AccountConfig) error {
	for _, account := range accounts {
		if err := s.loadOrInitializeAccountStatus(ctx, providers.AccountID(account.ID)); err != nil {
			return err
		}
	}
	s.publish(s.Flags())
	return nil
}

func (s *accountStateService) loadOrInitializeAccountStatus(ctx context.Context, account providers.AccountID) error {
	st, err := s.persistence.LoadStatus(ctx, account)
	if err != nil {
		slog.Warn("Failed to load sync status, initializing with defaults",
			"account", account, "error", err)
		st = &status.AccountStatus{}
	}

	if st.Phase == "" {
		st.Phase = status.SyncPhaseIdle
		st.Message = "No previous sync recorded"
	} else if st.Phase == status.SyncPhaseSyncing {
		// A status left in Syncing means the previous run was
		// interrupted mid-sync. Reset it so the next request starts over.
		slog.Warn("Previous sync was interrupted, resetting to Idle", "account", account)
		st.Phase = status.SyncPhaseIdle
		st.Message = "Previous sync was interrupted"
		if err := s.persistence.SaveStatus(ctx, account, st); err != nil {
			slog.Warn("Failed to persist corrected sync status", "account", account, "error", err)
		}
	}

	if st.LastSyncTime != nil {
		slog.Info("Loaded sync status",
			"account", account, "phase", st.Phase, "last_sync", st.LastSyncTime)
	} else {
		slog.Info("Sync status initialized", "account", account, "phase", st.Phase)
	}

	s.mu.Lock()
	s.cachedStatuses[account] = st
	s.mu.Unlock()
	return nil
}

func (s *accountStateService) EnsureAccount(ctx context.Context, account providers.AccountID) error {
	s.mu.RLock()
	_, exists := s.cachedStatuses[account]
	s.mu.RUnlock()
	if exists {
		return nil
	}

	if err := s.loadOrInitializeAccountStatus(ctx, account); err != nil {
		return err
	}
	s.publish(s.Flags())
	return nil
}

func (s *accountStateService) GetStatus(_ context.Context, account providers.AccountID) (*status.AccountStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.cachedStatuses[account]
	if !exists || st == nil {
		return nil, nil
	}
	// Return a copy to prevent external modification
	statusCopy := *st
	return &statusCopy, nil
}

func (s *accountStateService) ListStatuses(_ context.Context) (map[providers.AccountID]*status.AccountStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[providers.AccountID]*status.AccountStatus, len(s.cachedStatuses))
	for account, st := range s.cachedStatuses {
		if st != nil {
			statusCopy := *st
			result[account] = &statusCopy
		}
	}
	return result, nil
}

func (s *accountStateService) UpdateStatus(ctx context.Context, account providers.AccountID, st *status.AccountStatus) error {
	s.mu.Lock()
	if err := s.persistence.SaveStatus(ctx, account, st); err != nil {
		s.mu.Unlock()
		return err
	}
	statusCopy := *st
	s.cachedStatuses[account] = &statusCopy
	flags := s.recompute()
	s.mu.Unlock()

	s.publish(flags)
	return nil
}

func (s *accountStateService) UpdateStatusAtomically(
	ctx context.Context,
	account providers.AccountID,
	testAndUpdateFn func(st *status.AccountStatus) bool,
) (bool, error) {
	s.mu.Lock()

	st, exists := s.cachedStatuses[account]
	if !exists || st == nil {
		s.mu.Unlock()
		return false, fmt.Errorf("sync status for account %s not found", account)
	}

	shouldUpdate := testAndUpdateFn(st)
	if !shouldUpdate {
		s.mu.Unlock()
		return false, nil
	}

	if err := s.persistence.SaveStatus(ctx, account, st); err != nil {
		s.mu.Unlock()
		return false, err
	}
	flags := s.recompute()
	s.mu.Unlock()

	s.publish(flags)
	return true, nil
}

func (s *accountStateService) DeleteStatus(ctx context.Context, account providers.AccountID) error {
	s.mu.Lock()
	if err := s.persistence.DeleteStatus(ctx, account); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.cachedStatuses, account)
	flags := s.recompute()
	s.mu.Unlock()

	s.publish(flags)
	return nil
}

func (s *accountStateService) Flags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recompute()
}

func (s *accountStateService) SetNoNetwork(v bool) {
	s.mu.Lock()
	changed := s.noNetwork != v
	s.noNetwork = v
	flags := s.recompute()
	s.mu.Unlock()

	if changed {
		s.publish(flags)
	}
}

func (s *accountStateService) Subscribe() <-chan Flags {
	ch := make(chan Flags, 1)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// recompute derives the aggregate flags from the status table. Callers
// must hold mu (read or write).
func (s *accountStateService) recompute() Flags {
	flags := Flags{NoNetwork: s.noNetwork}
	for _, st := range s.cachedStatuses {
		if st == nil {
			continue
		}
		switch st.Phase {
		case status.SyncPhaseSyncing:
			flags.AnySyncing = true
		case status.SyncPhaseSynced:
			flags.AnySynced = true
		}
	}
	return flags
}

// publish delivers flags to subscribers without blocking. A full
// subscriber channel is drained of its stale value first so the channel
// always holds the most recent flags. Must be called without mu held.
func (s *accountStateService) publish(flags Flags) {
	s.mu.RLock()
	subscribers := s.subscribers
	s.mu.RUnlock()

	for _, ch := range subscribers {
		select {
		case ch <- flags:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- flags:
			default:
			}
		}
	}
}

// SortedAccounts returns the known account IDs in stable order, for
// deterministic API listings
func SortedAccounts(statuses map[providers.AccountID]*status.AccountStatus) []providers.AccountID {
	accounts := make([]providers.AccountID, 0, len(statuses))
	for account := range statuses {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	return accounts
}
