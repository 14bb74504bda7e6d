package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

// dbPersistence implements Persistence backed by Postgres. It is the
// deployment option for shared backends; single-device deployments use
// the file backend.
type dbPersistence struct {
	pool *pgxpool.Pool
}

// NewDBPersistence creates a new database-backed status persistence
func NewDBPersistence(pool *pgxpool.Pool) Persistence {
	return &dbPersistence{
		pool: pool,
	}
}

// Schema is the DDL for the account sync status table. It is applied by
// the serve command at startup when a database is configured.
const Schema = `
CREATE TABLE IF NOT EXISTS account_sync_status (
    account                TEXT PRIMARY KEY,
    phase                  TEXT NOT NULL,
    message                TEXT NOT NULL DEFAULT '',
    attempt_count          INT NOT NULL DEFAULT 0,
    last_attempt           TIMESTAMPTZ,
    last_sync_time         TIMESTAMPTZ,
    initial_sync_completed BOOLEAN NOT NULL DEFAULT FALSE,
    storage_recreated      BOOLEAN NOT NULL DEFAULT FALSE
)`

// EnsureSchema creates the status table if it does not exist
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure account_sync_status schema: %w", err)
	}
	return nil
}

func (d *dbPersistence) SaveStatus(ctx context.Context, account providers.AccountID, st *AccountStatus) error {
	const q = `
INSERT INTO account_sync_status
    (account, phase, message, attempt_count, last_attempt, last_sync_time, initial_sync_completed, storage_recreated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (account) DO UPDATE SET
    phase = EXCLUDED.phase,
    message = EXCLUDED.message,
    attempt_count = EXCLUDED.attempt_count,
    last_attempt = EXCLUDED.last_attempt,
    last_sync_time = EXCLUDED.last_sync_time,
    initial_sync_completed = EXCLUDED.initial_sync_completed,
    storage_recreated = EXCLUDED.storage_recreated`

	_, err := d.pool.Exec(ctx, q,
		string(account), string(st.Phase), st.Message, st.AttemptCount,
		st.LastAttempt, st.LastSyncTime, st.InitialSyncCompleted, st.StorageRecreated)
	if err != nil {
		return fmt.Errorf("failed to save status for account '%s': %w", account, err)
	}
	return nil
}

func (d *dbPersistence) LoadStatus(ctx context.Context, account providers.AccountID) (*AccountStatus, error) {
	const q = `
SELECT phase, message, attempt_count, last_attempt, last_sync_time, initial_sync_completed, storage_recreated
FROM account_sync_status
WHERE account = $1`

	var (
		st    AccountStatus
		phase string
	)
	err := d.pool.QueryRow(ctx, q, string(account)).Scan(
		&phase, &st.Message, &st.AttemptCount,
		&st.LastAttempt, &st.LastSyncTime, &st.InitialSyncCompleted, &st.StorageRecreated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No row yet - first run for this account
			return &AccountStatus{}, nil
		}
		return nil, fmt.Errorf("failed to load status for account '%s': %w", account, err)
	}
	st.Phase = SyncPhase(phase)

	return &st, nil
}

func (d *dbPersistence) LoadAllStatus(ctx context.Context) (map[providers.AccountID]*AccountStatus, error) {
	const q = `
SELECT account, phase, message, attempt_count, last_attempt, last_sync_time, initial_sync_completed, storage_recreated
FROM account_sync_status`

	rows, err := d.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load account statuses: %w", err)
	}
	defer rows.Close()

	result := make(map[providers.AccountID]*AccountStatus)
	for rows.Next() {
		var (
			account string
			phase   string
			st      AccountStatus
		)
		if err := rows.Scan(&account, &phase, &st.Message, &st.AttemptCount,
			&st.LastAttempt, &st.LastSyncTime, &st.InitialSyncCompleted, &st.StorageRecreated); err != nil {
			return nil, fmt.Errorf("failed to scan account status row: %w", err)
		}
		st.Phase = SyncPhase(phase)
		result[providers.AccountID(account)] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account status rows: %w", err)
	}

	return result, nil
}

func (d *dbPersistence) DeleteStatus(ctx context.Context, account providers.AccountID) error {
	const q = `DELETE FROM account_sync_status WHERE account = $1`
	if _, err := d.pool.Exec(ctx, q, string(account)); err != nil {
		return fmt.Errorf("failed to delete status for account '%s': %w", account, err)
	}
	return nil
}
