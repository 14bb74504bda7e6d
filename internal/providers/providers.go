// Package providers defines the collaborator interfaces the sync
// orchestrator drives: the groupware mail client, the per-domain sync
// clients, the local folder catalog and the widget refresher. The
// implementations live outside this module; tests and the simulate
// mode use the fake subpackage.
package providers

import "context"

// AccountID identifies one configured mail account. All orchestrator
// state is keyed by it.
type AccountID string

// FolderType classifies a mail folder on the server
type FolderType string

const (
	// FolderTypeInbox is the account's inbox
	FolderTypeInbox FolderType = "inbox"

	// FolderTypeSent holds sent messages
	FolderTypeSent FolderType = "sent"

	// FolderTypeDrafts holds draft messages
	FolderTypeDrafts FolderType = "drafts"

	// FolderTypeTrash holds deleted messages
	FolderTypeTrash FolderType = "trash"

	// FolderTypeSpam holds messages classified as spam
	FolderTypeSpam FolderType = "spam"

	// FolderTypeUser is any user-created folder
	FolderTypeUser FolderType = "user"
)

// Folder describes one server-side mail folder as recorded in the
// local folder table. The orchestrator only filters by Type and
// IsEmailFolder to decide sync scope; everything else stays opaque.
type Folder struct {
	// ID is the local identifier of the folder
	ID string

	// ServerRef is the server-side reference for the folder
	ServerRef string

	// Type is the folder classification
	Type FolderType

	// IsEmailFolder reports whether the folder holds mail (as opposed
	// to contact/calendar/task containers some backends expose in the
	// same namespace)
	IsEmailFolder bool
}

// Domain is one category of synchronized groupware data besides mail
type Domain string

const (
	// DomainContacts is the address book
	DomainContacts Domain = "contacts"

	// DomainNotes is the notes store
	DomainNotes Domain = "notes"

	// DomainCalendar is the calendar/event store
	DomainCalendar Domain = "calendar"

	// DomainTasks is the task store
	DomainTasks Domain = "tasks"
)

// MailProvider performs the mail-side network operations. All calls
// block until the server round trip completes or ctx is done.
type MailProvider interface {
	// SyncFolders refreshes the local folder table from the server.
	// It must run before any per-folder mail sync in a cycle.
	SyncFolders(ctx context.Context, account AccountID) error

	// SyncEmails synchronizes one folder. With forceFull set the
	// incremental sync cursor is discarded and the folder is re-fetched
	// from scratch.
	SyncEmails(ctx context.Context, account AccountID, folderID string, forceFull bool) error

	// PrefetchBodies downloads the bodies of the most recent count
	// inbox messages for offline availability.
	PrefetchBodies(ctx context.Context, account AccountID, count int) error
}

// FolderCatalog reads already-synced local folder metadata
type FolderCatalog interface {
	// ListFolders returns the folders currently known for the account
	ListFolders(ctx context.Context, account AccountID) ([]Folder, error)
}

// DomainProvider synchronizes one non-mail data domain. Providers for
// different domains hit logically separate server endpoints and are
// safe to run in parallel.
type DomainProvider interface {
	// Domain identifies the data domain this provider syncs
	Domain() Domain

	// Sync performs one synchronization pass for the account
	Sync(ctx context.Context, account AccountID) error
}

// WidgetRefresher notifies external mail-count widgets after a
// successful sync. Calls are fire-and-forget; implementations must not
// block and failures are ignored by the caller.
type WidgetRefresher interface {
	Refresh(account AccountID)
}
