package core

import (
	"context"
	"fmt"

	"microcosm/internal/config"
	"microcosm/internal/infra/persistence/memory"
	"microcosm/internal/infra/persistence/postgres"
	"microcosm/internal/infra/persistence/sqlite"
	"microcosm/pkg/domain"
)

// StorageDriver identifies a concrete snapshot storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// SnapshotStore is the durable backend Repo.Save and Repo.Restore use.
type SnapshotStore = domain.SnapshotStore

// OpenSnapshotStore selects a backend from cfg. An empty driver means sqlite.
func OpenSnapshotStore(ctx context.Context, cfg config.StorageConfig) (SnapshotStore, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("%s required for postgres storage", config.EnvPostgresDSN)
		}
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// Options returns the repo options cfg implies: debug retention and a glog
// logger at the configured verbosity.
func Options(cfg config.Config) []Option {
	return []Option{
		WithDebug(cfg.Debug),
		WithLogger(NewGlogLogger(cfg.LogVerbosity)),
	}
}
