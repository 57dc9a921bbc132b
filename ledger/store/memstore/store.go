// Package memstore keeps ledger state in process memory.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/screwyprof/ticle/ledger"
)

// Store implements ledger.Store in memory. Values are cloned on the way in
// and out so callers never share maps or slices with the store.
type Store struct {
	mu        sync.RWMutex
	pools     map[ledger.PoolID]ledger.Pool
	transfers map[uuid.UUID]ledger.PendingTransfer
}

// New creates an empty Store
func New() *Store {
	return &Store{
		pools:     map[ledger.PoolID]ledger.Pool{},
		transfers: map[uuid.UUID]ledger.PendingTransfer{},
	}
}

func (s *Store) CreatePool(_ context.Context, pool ledger.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[pool.ID]; ok {
		return ledger.ErrPoolExists
	}
	s.pools[pool.ID] = pool.Clone()
	return nil
}

func (s *Store) Pool(_ context.Context, id ledger.PoolID) (ledger.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[id]
	if !ok {
		return ledger.Pool{}, ledger.ErrPoolNotFound
	}
	return pool.Clone(), nil
}

func (s *Store) Commit(_ context.Context, c ledger.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pool := range c.Pools {
		if _, ok := s.pools[pool.ID]; !ok {
			return ledger.ErrPoolNotFound
		}
	}
	for _, pool := range c.Pools {
		s.pools[pool.ID] = pool.Clone()
	}
	for _, t := range c.Issued {
		s.transfers[t.ID] = cloneTransfer(t)
	}
	for _, id := range c.Resolved {
		delete(s.transfers, id)
	}
	return nil
}

func (s *Store) PendingTransfer(_ context.Context, id uuid.UUID) (ledger.PendingTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[id]
	if !ok {
		return ledger.PendingTransfer{}, ledger.ErrUnknownTransfer
	}
	return cloneTransfer(t), nil
}

func (s *Store) PendingTransfers(_ context.Context) ([]ledger.PendingTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.PendingTransfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		out = append(out, cloneTransfer(t))
	}
	slices.SortFunc(out, func(a, b ledger.PendingTransfer) int {
		if c := a.IssuedAt.Compare(b.IssuedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

func cloneTransfer(t ledger.PendingTransfer) ledger.PendingTransfer {
	if t.Escrow != nil {
		e := *t.Escrow
		t.Escrow = &e
	}
	return t
}
