package core

import (
	"context"
	"fmt"
	"time"

	"colazione/internal/infra/persistence/file"
	"colazione/internal/infra/persistence/memory"
	"colazione/internal/infra/persistence/postgres"
	"colazione/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageFile     StorageDriver = "file"     // one JSON document per record set
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and parameterizes a backend.
type StorageOptions struct {
	Driver      StorageDriver
	DataDir     string
	SQLitePath  string
	PostgresDSN string
	LockTimeout time.Duration
}

// OpenPersistentStore opens the backend named by opts.Driver, defaulting to
// the file backend.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageFile
	}
	var (
		store PersistentStore
		err   error
	)
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageFile:
		var fileOpts []file.Option
		if opts.LockTimeout > 0 {
			fileOpts = append(fileOpts, file.WithLockTimeout(opts.LockTimeout))
		}
		store, err = file.NewStore(opts.DataDir, engine, fileOpts...)
	case StorageSQLite:
		store, err = sqlite.NewStore(opts.SQLitePath, engine, opts.LockTimeout)
	case StoragePostgres:
		store, err = postgres.NewStore(ctx, opts.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return store, nil
}
