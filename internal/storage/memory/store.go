// Package memory provides in-memory stores for tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
}

// NewPositionStore creates an empty position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]*domain.Position)}
}

// GetAll returns copies of every position ordered by creation time.
func (s *PositionStore) GetAll(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetByID returns ErrNotFound if the position does not exist.
func (s *PositionStore) GetByID(_ context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// Create stores a copy of p.
func (s *PositionStore) Create(_ context.Context, p *domain.Position) (string, error) {
	if p == nil {
		return "", storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := p.Clone()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, exists := s.positions[c.ID]; exists {
		return "", storage.ErrDuplicateKey
	}
	s.positions[c.ID] = c
	return c.ID, nil
}

// Update applies patch to the stored position.
func (s *PositionStore) Update(_ context.Context, id string, patch domain.PositionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return storage.ErrNotFound
	}
	patch.Apply(p)
	return nil
}

// Delete removes the position.
func (s *PositionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.positions, id)
	return nil
}

var _ storage.PositionStore = (*PositionStore)(nil)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu         sync.RWMutex
	byPosition map[string][]*domain.Transaction
	owner      map[string]string // transaction id -> position id
}

// NewTransactionStore creates an empty transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		byPosition: make(map[string][]*domain.Transaction),
		owner:      make(map[string]string),
	}
}

// GetByPositionID returns copies in insertion order.
func (s *TransactionStore) GetByPositionID(_ context.Context, positionID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := s.byPosition[positionID]
	out := make([]*domain.Transaction, 0, len(txs))
	for _, t := range txs {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

// Add appends a copy of t under positionID.
func (s *TransactionStore) Add(_ context.Context, positionID string, t *domain.Transaction) (string, error) {
	if t == nil || positionID == "" {
		return "", storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *t
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, exists := s.owner[c.ID]; exists {
		return "", storage.ErrDuplicateKey
	}
	c.PositionID = positionID
	s.byPosition[positionID] = append(s.byPosition[positionID], &c)
	s.owner[c.ID] = positionID
	return c.ID, nil
}

// Delete removes one transaction.
func (s *TransactionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	positionID, ok := s.owner[id]
	if !ok {
		return storage.ErrNotFound
	}
	txs := s.byPosition[positionID]
	for i, t := range txs {
		if t.ID == id {
			s.byPosition[positionID] = append(txs[:i:i], txs[i+1:]...)
			break
		}
	}
	delete(s.owner, id)
	return nil
}

// DeleteByPositionID drops the whole log of a position.
func (s *TransactionStore) DeleteByPositionID(_ context.Context, positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.byPosition[positionID] {
		delete(s.owner, t.ID)
	}
	delete(s.byPosition, positionID)
	return nil
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu      sync.RWMutex
	ledgers map[string]domain.Ledger
}

// NewLedgerStore creates an empty ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{ledgers: make(map[string]domain.Ledger)}
}

// Get returns a copy of the ledger.
func (s *LedgerStore) Get(_ context.Context, positionID string) (domain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append(domain.Ledger{}, s.ledgers[positionID]...), nil
}

// Put replaces the ledger.
func (s *LedgerStore) Put(_ context.Context, positionID string, entries domain.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(entries) == 0 {
		delete(s.ledgers, positionID)
		return nil
	}
	s.ledgers[positionID] = append(domain.Ledger{}, entries...)
	return nil
}

var _ storage.LedgerStore = (*LedgerStore)(nil)

// New returns a fresh set of in-memory stores.
func New() storage.Stores {
	return storage.Stores{
		Positions:    NewPositionStore(),
		Transactions: NewTransactionStore(),
		Ledgers:      NewLedgerStore(),
		Close:        func() error { return nil },
	}
}
