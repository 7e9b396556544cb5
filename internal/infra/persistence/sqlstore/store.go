// Package sqlstore implements the transactional-relational record store on
// database/sql. Dialects supply placeholder style and cross-process locking.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"colazione/internal/infra/persistence/state"
	"colazione/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// Dialect adapts the store to one SQL engine.
type Dialect interface {
	Name() string
	// Rebind rewrites ? placeholders into the engine's style.
	Rebind(query string) string
	// LockSets takes the engine-level write locks for sets inside tx.
	LockSets(ctx context.Context, tx *sql.Tx, sets []domain.RecordSet) error
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store persists record sets to normalized tables. Each RunInTransaction is
// one SQL transaction, so multi-set operations are all-or-nothing.
type Store struct {
	db      *sql.DB
	dialect Dialect
	engine  *domain.RulesEngine
	locks   *state.SetLocks
}

// New applies the schema to db and returns a store over it.
func New(ctx context.Context, db *sql.DB, dialect Dialect, engine *domain.RulesEngine) (*Store, error) {
	if err := applySchema(ctx, db); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{db: db, dialect: dialect, engine: engine, locks: state.NewSetLocks()}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Driver reports the dialect name.
func (s *Store) Driver() string { return s.dialect.Name() }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Read loads the requested sets outside any transaction.
func (s *Store) Read(ctx context.Context, sets ...domain.RecordSet) (domain.Snapshot, error) {
	snap, err := s.load(ctx, s.db, domain.CanonicalSets(sets))
	if err != nil {
		return domain.Snapshot{}, domain.StorageFailure("read", err)
	}
	return snap, nil
}

// RunInTransaction locks sets, loads them inside a SQL transaction, applies fn,
// replays the recorded changes and commits.
func (s *Store) RunInTransaction(ctx context.Context, sets []domain.RecordSet, fn func(domain.Transaction) error) (res domain.Result, err error) {
	sets = domain.CanonicalSets(sets)
	release := s.locks.Lock(sets)
	defer release()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, domain.StorageFailure("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	if err := s.dialect.LockSets(ctx, sqlTx, sets); err != nil {
		return domain.Result{}, domain.StorageFailure("lock", err)
	}
	snap, err := s.load(ctx, sqlTx, sets)
	if err != nil {
		return domain.Result{}, domain.StorageFailure("load", err)
	}
	tx := state.Begin(sets, snap)
	res, err = state.Run(ctx, s.engine, tx, fn)
	if err != nil {
		return res, err
	}
	if err := s.replay(ctx, sqlTx, tx.Changes()); err != nil {
		return res, domain.StorageFailure("persist", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return res, domain.StorageFailure("commit", err)
	}
	committed = true
	return res, nil
}

// RebindDollar rewrites ? placeholders as $1..$n.
func RebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
