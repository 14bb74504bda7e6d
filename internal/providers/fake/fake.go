// Package fake provides in-memory provider implementations with
// configurable latency and failure injection. Tests drive the
// orchestrator with them, and the daemon's simulate mode uses them to
// exercise the full stack without a groupware backend.
package fake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

// MailProvider is a configurable in-memory mail backend. The zero
// value succeeds instantly with the default folder set.
type MailProvider struct {
	// Folders returned by ListFolders; DefaultFolders() if nil
	Folders []providers.Folder

	// Latency is added to every call before it completes
	Latency time.Duration

	// SyncFoldersErr fails every SyncFolders call
	SyncFoldersErr error

	// SyncEmailsErr fails SyncEmails for the folder IDs it maps; a
	// folder ID mapped to nil succeeds
	SyncEmailsErr map[string]error

	// PrefetchErr fails every PrefetchBodies call
	PrefetchErr error

	// Block, when set, makes every mail call hang until its context
	// ends (for timeout and cancellation tests)
	Block bool

	syncFoldersCalls   atomic.Int32
	prefetchCalls      atomic.Int32
	prefetchLastCount  atomic.Int32
	mu                 sync.Mutex
	syncEmailsByFolder map[string]int
	forcedByFolder     map[string]bool
}

// DefaultFolders is the folder set a typical freshly added account has
func DefaultFolders() []providers.Folder {
	return []providers.Folder{
		{ID: "inbox", ServerRef: "INBOX", Type: providers.FolderTypeInbox, IsEmailFolder: true},
		{ID: "sent", ServerRef: "Sent", Type: providers.FolderTypeSent, IsEmailFolder: true},
		{ID: "drafts", ServerRef: "Drafts", Type: providers.FolderTypeDrafts, IsEmailFolder: true},
		{ID: "trash", ServerRef: "Trash", Type: providers.FolderTypeTrash, IsEmailFolder: true},
	}
}

func (m *MailProvider) wait(ctx context.Context) error {
	if m.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// SyncFolders implements providers.MailProvider
func (m *MailProvider) SyncFolders(ctx context.Context, _ providers.AccountID) error {
	m.syncFoldersCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.SyncFoldersErr
}

// SyncEmails implements providers.MailProvider
func (m *MailProvider) SyncEmails(ctx context.Context, _ providers.AccountID, folderID string, forceFull bool) error {
	m.mu.Lock()
	if m.syncEmailsByFolder == nil {
		m.syncEmailsByFolder = make(map[string]int)
		m.forcedByFolder = make(map[string]bool)
	}
	m.syncEmailsByFolder[folderID]++
	if forceFull {
		m.forcedByFolder[folderID] = true
	}
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.SyncEmailsErr[folderID]
}

// PrefetchBodies implements providers.MailProvider
func (m *MailProvider) PrefetchBodies(ctx context.Context, _ providers.AccountID, count int) error {
	m.prefetchCalls.Add(1)
	m.prefetchLastCount.Store(int32(count))
	if err := m.wait(ctx); err != nil {
		return err
	}
	return m.PrefetchErr
}

// ListFolders implements providers.FolderCatalog
func (m *MailProvider) ListFolders(_ context.Context, _ providers.AccountID) ([]providers.Folder, error) {
	if m.Folders != nil {
		return m.Folders, nil
	}
	return DefaultFolders(), nil
}

// SyncFoldersCalls returns how often SyncFolders was called
func (m *MailProvider) SyncFoldersCalls() int {
	return int(m.syncFoldersCalls.Load())
}

// SyncEmailsCalls returns how often SyncEmails was called for folderID
func (m *MailProvider) SyncEmailsCalls(folderID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncEmailsByFolder[folderID]
}

// TotalSyncEmailsCalls returns how often SyncEmails was called overall
func (m *MailProvider) TotalSyncEmailsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.syncEmailsByFolder {
		total += n
	}
	return total
}

// ForcedFullResync reports whether folderID ever saw a forced full sync
func (m *MailProvider) ForcedFullResync(folderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forcedByFolder[folderID]
}

// PrefetchCalls returns how often PrefetchBodies was called
func (m *MailProvider) PrefetchCalls() int {
	return int(m.prefetchCalls.Load())
}

// PrefetchLastCount returns the count argument of the last prefetch
func (m *MailProvider) PrefetchLastCount() int {
	return int(m.prefetchLastCount.Load())
}

// DomainProvider is a configurable in-memory domain sync client
type DomainProvider struct {
	// Name is the domain this provider reports
	Name providers.Domain

	// Err fails every Sync call
	Err error

	// Latency is added to every Sync call
	Latency time.Duration

	calls atomic.Int32
}

// Domain implements providers.DomainProvider
func (d *DomainProvider) Domain() providers.Domain { return d.Name }

// Sync implements providers.DomainProvider
func (d *DomainProvider) Sync(ctx context.Context, _ providers.AccountID) error {
	d.calls.Add(1)
	if d.Latency > 0 {
		select {
		case <-time.After(d.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.Err
}

// Calls returns how often Sync was called
func (d *DomainProvider) Calls() int {
	return int(d.calls.Load())
}

// AllDomains returns one fake provider per data domain
func AllDomains() []providers.DomainProvider {
	return []providers.DomainProvider{
		&DomainProvider{Name: providers.DomainContacts},
		&DomainProvider{Name: providers.DomainNotes},
		&DomainProvider{Name: providers.DomainCalendar},
		&DomainProvider{Name: providers.DomainTasks},
	}
}

// WidgetRefresher records refresh notifications
type WidgetRefresher struct {
	mu       sync.Mutex
	accounts []providers.AccountID
}

// Refresh implements providers.WidgetRefresher
func (w *WidgetRefresher) Refresh(account providers.AccountID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = append(w.accounts, account)
}

// Refreshed returns the accounts refresh was called for, in order
func (w *WidgetRefresher) Refreshed() []providers.AccountID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]providers.AccountID(nil), w.accounts...)
}
