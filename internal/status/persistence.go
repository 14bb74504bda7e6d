package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

const (
	// StatusFileName is the name of the per-account status file
	StatusFileName = "status.json"
)

// Persistence defines the interface for account sync status persistence.
// It doubles as the durable settings store for the orchestrator: the
// initial-sync-completed marker, last sync time and the destructive
// migration flag all live in the AccountStatus record.
type Persistence interface {
	// SaveStatus saves the sync status for a specific account
	SaveStatus(ctx context.Context, account providers.AccountID, st *AccountStatus) error

	// LoadStatus loads the sync status for a specific account.
	// Returns an empty AccountStatus if none was ever saved (first run).
	LoadStatus(ctx context.Context, account providers.AccountID) (*AccountStatus, error)

	// LoadAllStatus loads the sync status for all known accounts
	LoadAllStatus(ctx context.Context) (map[providers.AccountID]*AccountStatus, error)

	// DeleteStatus removes the persisted record for an account, used
	// when the account is removed or logged out
	DeleteStatus(ctx context.Context, account providers.AccountID) error
}

// filePersistence implements Persistence using the local filesystem
type filePersistence struct {
	basePath string
}

// NewFilePersistence creates a new file-based status persistence.
// basePath is the base directory where per-account status files are
// stored, one subdirectory per account.
func NewFilePersistence(basePath string) Persistence {
	return &filePersistence{
		basePath: basePath,
	}
}

// SaveStatus saves the sync status to a JSON file in an account-specific directory
func (f *filePersistence) SaveStatus(_ context.Context, account providers.AccountID, st *AccountStatus) error {
	accountDir := filepath.Join(f.basePath, string(account))
	if err := os.MkdirAll(accountDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for account '%s': %w", account, err)
	}

	filePath := filepath.Join(accountDir, StatusFileName)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for account '%s': %w", account, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for account '%s': %w", account, err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for account '%s': %w", account, err)
	}

	return nil
}

// LoadStatus loads the sync status from a JSON file for a specific account.
// Returns an empty AccountStatus if the file doesn't exist.
func (f *filePersistence) LoadStatus(_ context.Context, account providers.AccountID) (*AccountStatus, error) {
	filePath := filepath.Join(f.basePath, string(account), StatusFileName)

	// #nosec G304 -- filePath is constructed from trusted internal sources (basePath + account id)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No file yet - first run for this account
			return &AccountStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for account '%s': %w", account, err)
	}

	var st AccountStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for account '%s': %w", account, err)
	}

	return &st, nil
}

// LoadAllStatus loads the sync status for every account directory under basePath
func (f *filePersistence) LoadAllStatus(ctx context.Context) (map[providers.AccountID]*AccountStatus, error) {
	result := make(map[providers.AccountID]*AccountStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status base directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		account := providers.AccountID(entry.Name())
		st, err := f.LoadStatus(ctx, account)
		if err != nil {
			return nil, err
		}
		result[account] = st
	}

	return result, nil
}

// DeleteStatus removes the account's status directory
func (f *filePersistence) DeleteStatus(_ context.Context, account providers.AccountID) error {
	accountDir := filepath.Join(f.basePath, string(account))
	if err := os.RemoveAll(accountDir); err != nil {
		return fmt.Errorf("failed to delete status for account '%s': %w", account, err)
	}
	return nil
}
