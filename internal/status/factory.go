package status

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skylarkhq/skylark-sync/internal/config"
)

// Backend bundles a persistence implementation with the lifecycle of
// the storage behind it
type Backend struct {
	Persistence Persistence
	pool        *pgxpool.Pool
}

// Close releases the storage resources. A no-op for file backends.
func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// NewBackend creates the configured persistence backend: Postgres when
// a database section is present, local files under the data directory
// otherwise. Callers must Close the backend on shutdown.
func NewBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	if cfg.Database != nil {
		return newDatabaseBackend(ctx, cfg.Database)
	}
	return newFileBackend(cfg.GetDataDir())
}

func newDatabaseBackend(ctx context.Context, dbCfg *config.DatabaseConfig) (*Backend, error) {
	connString, err := dbCfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build database connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	slog.Info("Using Postgres status persistence", "host", dbCfg.Host, "database", dbCfg.Database)
	return &Backend{Persistence: NewDBPersistence(pool), pool: pool}, nil
}

func newFileBackend(dataDir string) (*Backend, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	slog.Info("Using file status persistence", "dir", dataDir)
	return &Backend{Persistence: NewFilePersistence(dataDir)}, nil
}
