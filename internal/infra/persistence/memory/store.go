// Package memory provides an in-memory implementation of the record store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"sync"

	"colazione/internal/infra/persistence/state"
	"colazione/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Snapshot aliases domain.Snapshot for state import and export.
	Snapshot = domain.Snapshot
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
)

// Store provides an in-memory transactional store for the breakfast records.
type Store struct {
	locks  *state.SetLocks
	mu     sync.RWMutex
	state  Snapshot
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		locks:  state.NewSetLocks(),
		state:  state.Fill(Snapshot{}),
		engine: engine,
	}
}

// ExportState clones the current store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return state.Clone(s.state)
}

// ImportState replaces the store state with the provided snapshot, bypassing rules.
func (s *Store) ImportState(snapshot Snapshot) {
	release := s.locks.Lock(domain.AllRecordSets)
	defer release()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone(snapshot)
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *RulesEngine { return s.engine }

// Driver reports the backend name.
func (s *Store) Driver() string { return "memory" }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn against a copy of the locked sets and swaps
// the modified sets in when the rules allow it.
func (s *Store) RunInTransaction(ctx context.Context, sets []domain.RecordSet, fn func(Transaction) error) (Result, error) {
	sets = domain.CanonicalSets(sets)
	release := s.locks.Lock(sets)
	defer release()

	tx := state.Begin(sets, s.read(sets))
	res, err := state.Run(ctx, s.engine, tx, fn)
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assign(&s.state, tx.Data(), tx.Dirty())
	return res, nil
}

// Read returns a copy of the requested sets.
func (s *Store) Read(_ context.Context, sets ...domain.RecordSet) (Snapshot, error) {
	return s.read(sets), nil
}

func (s *Store) read(sets []domain.RecordSet) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out Snapshot
	assign(&out, state.Clone(s.state), sets)
	return state.Fill(out)
}

func assign(dst *Snapshot, src Snapshot, sets []domain.RecordSet) {
	for _, set := range sets {
		switch set {
		case domain.SetUsers:
			dst.Users = domain.CloneUsers(src.Users)
		case domain.SetGroups:
			dst.Groups = append([]string{}, src.Groups...)
		case domain.SetMenu:
			dst.Menu = domain.CloneMenu(src.Menu)
		case domain.SetOrders:
			dst.Orders = domain.CloneOrders(src.Orders)
		case domain.SetPayments:
			dst.Payments = domain.ClonePayments(src.Payments)
		}
	}
}
