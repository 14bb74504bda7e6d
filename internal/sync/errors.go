package sync

import "errors"

// Sentinel errors reported through the ManualSync completion callback
var (
	// ErrNetworkUnavailable means the network gate rejected the request
	// before any network activity started
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrSyncInProgress means a sync for the account is already running
	// and the request was a no-op
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrAccountUnknown means the account has no state record and none
	// could be created
	ErrAccountUnknown = errors.New("account unknown")
)

// Stage constants identifying where in a sync cycle a failure occurred
const (
	// StageFolderDiscovery is the server folder-list refresh. Its
	// failure short-circuits the rest of the cycle.
	StageFolderDiscovery = "folder-discovery"

	// StageFolderSync is the per-folder mail sync stage
	StageFolderSync = "folder-sync"

	// StageBodyPrefetch is the inbox body prefetch stage
	StageBodyPrefetch = "body-prefetch"

	// StageDomainSync is the parallel contacts/notes/calendar/tasks stage
	StageDomainSync = "domain-sync"
)

// Skip reason constants logged when a sync request is a no-op
const (
	// ReasonAlreadyInProgress means a sync for the account is running
	ReasonAlreadyInProgress = "sync-already-in-progress"

	// ReasonAlreadySynced means the account was already synced this session
	ReasonAlreadySynced = "already-synced-this-session"

	// ReasonNoNetwork means the network gate reported no usable path
	ReasonNoNetwork = "network-unavailable"

	// ReasonAttemptsExhausted means the retry governor denied the attempt
	ReasonAttemptsExhausted = "attempts-exhausted"
)

// Error is a structured sync failure carrying the stage it occurred in
type Error struct {
	Err     error
	Message string
	Stage   string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
