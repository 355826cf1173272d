package payments

import (
	"fmt"
	"sync"

	"paygate/internal/providers"
)

// Store is the in-memory transaction registry, keyed by provider
// reference. The core deliberately holds no persistent store: durability,
// audit trail and idempotent retry across restarts belong to an external
// datastore, and transaction state may be lost when the process exits.
type Store struct {
	mu    sync.RWMutex
	byRef map[string]providers.Transaction
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{byRef: make(map[string]providers.Transaction)}
}

// Put registers a transaction under its provider reference.
func (s *Store) Put(txn *providers.Transaction) {
	if txn == nil || txn.Reference == "" {
		return
	}
	s.mu.Lock()
	s.byRef[txn.Reference] = *txn
	s.mu.Unlock()
}

// Get returns a copy of the transaction for a reference.
func (s *Store) Get(reference string) (providers.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.byRef[reference]
	return txn, ok
}

// SetState advances a transaction's state. Transitions are monotone:
// illegal moves are rejected and terminal states never change. Returns
// false without error when the transaction is already in the requested
// state, so callers can emit lifecycle events once per transition.
func (s *Store) SetState(reference string, next providers.State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.byRef[reference]
	if !ok {
		return false, fmt.Errorf("unknown transaction reference %q", reference)
	}
	if txn.State == next {
		return false, nil
	}
	if !txn.State.CanTransition(next) {
		return false, fmt.Errorf("illegal transition %s -> %s for %q", txn.State, next, reference)
	}
	txn.State = next
	s.byRef[reference] = txn
	return true, nil
}

// Len returns the number of tracked transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byRef)
}
