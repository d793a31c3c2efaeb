package core

import (
	"fmt"
	"io"

	"transplantcore/internal/infra/persistence/memory"
	"transplantcore/internal/infra/persistence/postgres"
	"transplantcore/internal/infra/persistence/sqlite"
	"transplantcore/internal/waitlist"
)

// StorageDriver identifies a persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process memory only
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterises the backend.
type StorageConfig struct {
	Driver      StorageDriver `mapstructure:"driver"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
}

// OpenPersistentStore opens the backend named by cfg; an empty driver means
// sqlite. A nil drawer uses an unseeded RandomDrawer.
func OpenPersistentStore(cfg StorageConfig, engine *RulesEngine, drawer waitlist.PriorityDrawer) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, drawer), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine, drawer)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine, drawer)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// CloseStore releases the store's resources when it holds any.
func CloseStore(store PersistentStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
