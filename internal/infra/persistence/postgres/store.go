// Package postgres provides the server relational record store. Writers take
// transaction-scoped advisory locks per record set, so processes sharing one
// database serialize exactly like the in-process backends.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"colazione/internal/infra/persistence/sqlstore"
	"colazione/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/colazione?sslmode=disable"
	// lockNamespace prefixes every advisory lock key taken by this store.
	lockNamespace int64 = 0x636f6c61 << 8
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a sqlstore.Store on a Postgres connection pool.
type Store struct {
	*sqlstore.Store
}

type dialect struct{}

func (dialect) Name() string { return "postgres" }

func (dialect) Rebind(query string) string { return sqlstore.RebindDollar(query) }

// LockSets takes one advisory lock per set, released at commit or rollback.
func (dialect) LockSets(ctx context.Context, tx *sql.Tx, sets []domain.RecordSet) error {
	for _, set := range domain.CanonicalSets(sets) {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, LockKey(set)); err != nil {
			return fmt.Errorf("advisory lock %s: %w", set, err)
		}
	}
	return nil
}

// LockKey returns the advisory lock key of set.
func LockKey(set domain.RecordSet) int64 {
	for i, s := range domain.AllRecordSets {
		if s == set {
			return lockNamespace + int64(i)
		}
	}
	return lockNamespace + 0xff
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// defaultDSN), verifies connectivity and applies the schema.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := sqlstore.New(ctx, db, dialect{}, engine)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: store}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
