package storage

import (
	"context"

	"github.com/vadiminshakov/infbuy/internal/domain"
)

// PositionStore persists tracked positions.
type PositionStore interface {
	// GetAll returns every position ordered by creation time.
	GetAll(ctx context.Context) ([]*domain.Position, error)

	// GetByID returns ErrNotFound if the position does not exist.
	GetByID(ctx context.Context, id string) (*domain.Position, error)

	// Create stores p and returns its id. An empty ID is assigned by the store.
	Create(ctx context.Context, p *domain.Position) (string, error)

	// Update applies a partial update. Returns ErrNotFound if the position does not exist.
	Update(ctx context.Context, id string, patch domain.PositionPatch) error

	// Delete removes the position. Returns ErrNotFound if the position does not exist.
	Delete(ctx context.Context, id string) error
}

// TransactionStore persists the fill log of each position.
type TransactionStore interface {
	// GetByPositionID returns the position's transactions in insertion order.
	GetByPositionID(ctx context.Context, positionID string) ([]*domain.Transaction, error)

	// Add appends a transaction and returns its id.
	Add(ctx context.Context, positionID string, t *domain.Transaction) (string, error)

	// Delete removes one transaction. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// DeleteByPositionID removes every transaction of a position.
	DeleteByPositionID(ctx context.Context, positionID string) error
}

// LedgerStore persists the compounding ledger of version 3.0 positions.
type LedgerStore interface {
	// Get returns an empty ledger when none was stored.
	Get(ctx context.Context, positionID string) (domain.Ledger, error)

	// Put replaces the whole ledger. An empty ledger deletes it.
	Put(ctx context.Context, positionID string, entries domain.Ledger) error
}

// Stores bundles the three stores a backend provides.
type Stores struct {
	Positions    PositionStore
	Transactions TransactionStore
	Ledgers      LedgerStore
	Close        func() error
}
