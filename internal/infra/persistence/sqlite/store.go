// Package sqlite provides the embedded relational record store on the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"colazione/internal/infra/persistence/sqlstore"
	"colazione/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

const defaultBusyTimeout = 5 * time.Second

// Store is a sqlstore.Store bound to one database file.
type Store struct {
	*sqlstore.Store
	path string
}

type dialect struct{}

func (dialect) Name() string { return "sqlite" }

func (dialect) Rebind(query string) string { return query }

// LockSets is a no-op: transactions begin IMMEDIATE, which takes the database
// write lock up front.
func (dialect) LockSets(context.Context, *sql.Tx, []domain.RecordSet) error { return nil }

// DSN builds the connection string for path with write-ahead logging, an
// immediate transaction lock and a bounded busy wait.
func DSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// NewStore opens (creating when needed) the database at path.
func NewStore(path string, engine *domain.RulesEngine, busyTimeout time.Duration) (*Store, error) {
	if path == "" {
		path = "colazione.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", DSN(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := sqlstore.New(context.Background(), db, dialect{}, engine)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: store, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
