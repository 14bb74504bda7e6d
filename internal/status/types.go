// Package status provides per-account sync status tracking and
// persistence for the orchestrator.
package status

import (
	"time"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

// SyncPhase represents the current phase of an account's synchronization
type SyncPhase string

const (
	// SyncPhaseIdle means no sync has been attempted this session
	SyncPhaseIdle SyncPhase = "Idle"

	// SyncPhaseSyncing means a sync is currently in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseSynced means the account is considered synced for this
	// session. This includes the degraded case where the attempt cap
	// was reached and the account was forced out of retrying.
	SyncPhaseSynced SyncPhase = "Synced"

	// SyncPhaseError means the last sync attempt failed. The phase is
	// transient; the orchestrator self-heals it to Synced so readers
	// are never blocked on a dangling error.
	SyncPhaseError SyncPhase = "Error"
)

// AccountStatus is the persisted synchronization record for one account
type AccountStatus struct {
	// Phase is the current state-machine phase
	Phase SyncPhase `json:"phase"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty"`

	// AttemptCount is the number of sync attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastAttempt is the timestamp of the last sync attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// InitialSyncCompleted records whether a full initial sync ever
	// finished for this account
	InitialSyncCompleted bool `json:"initialSyncCompleted,omitempty"`

	// StorageRecreated is set by the storage layer when a destructive
	// migration discarded local data. While set, the next sync runs the
	// initial path again regardless of InitialSyncCompleted.
	StorageRecreated bool `json:"storageRecreated,omitempty"`
}

// Snapshot is a read-only copy of an account's status handed to
// observers. Mutating it has no effect on orchestrator state.
type Snapshot struct {
	Account providers.AccountID `json:"account"`
	AccountStatus
}
