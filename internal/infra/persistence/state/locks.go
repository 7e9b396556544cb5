package state

import (
	"sync"

	"colazione/pkg/domain"
)

// SetLocks serializes writers per record set within one process.
type SetLocks struct {
	mu map[domain.RecordSet]*sync.Mutex
}

// NewSetLocks allocates one mutex per known record set.
func NewSetLocks() *SetLocks {
	l := &SetLocks{mu: make(map[domain.RecordSet]*sync.Mutex, len(domain.AllRecordSets))}
	for _, s := range domain.AllRecordSets {
		l.mu[s] = &sync.Mutex{}
	}
	return l
}

// Lock acquires the mutexes of sets in canonical order and returns the
// matching release function.
func (l *SetLocks) Lock(sets []domain.RecordSet) func() {
	ordered := domain.CanonicalSets(sets)
	for _, s := range ordered {
		l.mu[s].Lock()
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			l.mu[ordered[i]].Unlock()
		}
	}
}
