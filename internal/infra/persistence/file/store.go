// Package file provides the file-with-locking record store: one JSON document
// per record set, guarded by an advisory lock file and replaced atomically.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"colazione/internal/infra/persistence/state"
	"colazione/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 10 * time.Millisecond
)

// ErrLockTimeout is wrapped when a document lock cannot be acquired in time.
var ErrLockTimeout = errors.New("document lock timeout")

// Store persists each record set as an indented JSON document under dir.
type Store struct {
	dir         string
	engine      *domain.RulesEngine
	locks       *state.SetLocks
	lockTimeout time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a writer waits for a document lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// NewStore prepares dir and returns a store over it.
func NewStore(dir string, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{dir: dir, engine: engine, locks: state.NewSetLocks(), lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Driver reports the backend name.
func (s *Store) Driver() string { return "file" }

// Close releases nothing; locks are held only during transactions.
func (s *Store) Close() error { return nil }

// DocumentPath returns the JSON document path for set.
func (s *Store) DocumentPath(set domain.RecordSet) string {
	return filepath.Join(s.dir, documentNames[set])
}

// Read decodes the requested documents without taking locks.
func (s *Store) Read(_ context.Context, sets ...domain.RecordSet) (domain.Snapshot, error) {
	snap, err := s.load(domain.CanonicalSets(sets))
	if err != nil {
		return domain.Snapshot{}, domain.StorageFailure("read", err)
	}
	return snap, nil
}

// RunInTransaction locks the documents of sets in canonical order, re-reads
// them, applies fn and replaces every modified document.
func (s *Store) RunInTransaction(ctx context.Context, sets []domain.RecordSet, fn func(domain.Transaction) error) (domain.Result, error) {
	sets = domain.CanonicalSets(sets)
	release := s.locks.Lock(sets)
	defer release()

	unlock, err := s.lockDocuments(ctx, sets)
	if err != nil {
		return domain.Result{}, domain.StorageFailure("lock", err)
	}
	defer unlock()

	snap, err := s.load(sets)
	if err != nil {
		return domain.Result{}, domain.StorageFailure("load", err)
	}
	tx := state.Begin(sets, snap)
	res, err := state.Run(ctx, s.engine, tx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(tx.Data(), tx.Dirty()); err != nil {
		return res, domain.StorageFailure("persist", err)
	}
	return res, nil
}

func (s *Store) load(sets []domain.RecordSet) (domain.Snapshot, error) {
	var snap domain.Snapshot
	for _, set := range sets {
		if err := readDocument(s.DocumentPath(set), set, &snap); err != nil {
			return domain.Snapshot{}, err
		}
	}
	return state.Fill(snap), nil
}

// persist stages every modified document before renaming any of them, so an
// encode or write failure leaves all documents untouched.
func (s *Store) persist(snap domain.Snapshot, dirty []domain.RecordSet) error {
	staged := make(map[domain.RecordSet]string, len(dirty))
	defer func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}()
	for _, set := range dirty {
		data, err := EncodeDocument(set, snap)
		if err != nil {
			return fmt.Errorf("encode %s: %w", set, err)
		}
		tmp, err := stageDocument(s.DocumentPath(set), data)
		if err != nil {
			return fmt.Errorf("stage %s: %w", set, err)
		}
		staged[set] = tmp
	}
	for _, set := range dirty {
		if err := os.Rename(staged[set], s.DocumentPath(set)); err != nil {
			return fmt.Errorf("replace %s: %w", set, err)
		}
		delete(staged, set)
	}
	return nil
}

func (s *Store) lockDocuments(ctx context.Context, sets []domain.RecordSet) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	held := make([]*flock.Flock, 0, len(sets))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock()
		}
	}
	for _, set := range sets {
		lock := flock.New(s.DocumentPath(set) + ".lock")
		ok, err := lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil || !ok {
			unlock()
			if err == nil || errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %s", ErrLockTimeout, set)
			}
			return nil, err
		}
		held = append(held, lock)
	}
	return unlock, nil
}
