package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// GetByPositionID returns the log in insertion order.
func (s *TransactionStore) GetByPositionID(ctx context.Context, positionID string) ([]*domain.Transaction, error) {
	query := `
		SELECT id, position_id, type, quantity, price, fee, trade_date, created_at, memo
		FROM transactions
		WHERE position_id = $1
		ORDER BY seq
	`
	rows, err := s.pool.Query(ctx, query, positionID)
	if err != nil {
		return nil, errors.Wrap(err, "query transactions")
	}
	defer rows.Close()

	out := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate transactions")
}

// Add inserts t under positionID.
func (s *TransactionStore) Add(ctx context.Context, positionID string, t *domain.Transaction) (string, error) {
	if t == nil || positionID == "" {
		return "", storage.ErrInvalidInput
	}
	id := t.ID
	if id == "" {
		id = uuid.New().String()
	}

	query := `
		INSERT INTO transactions (id, position_id, type, quantity, price, fee, trade_date, created_at, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		id,
		positionID,
		string(t.Type),
		t.Quantity,
		t.Price,
		t.Fee,
		t.Date,
		t.CreatedAt,
		t.Memo,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return "", storage.ErrDuplicateKey
		}
		return "", errors.Wrap(err, "insert transaction")
	}
	return id, nil
}

// Delete removes one transaction.
func (s *TransactionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete transaction")
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteByPositionID removes the whole log of a position.
func (s *TransactionStore) DeleteByPositionID(ctx context.Context, positionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE position_id = $1`, positionID)
	return errors.Wrap(err, "delete position transactions")
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t   domain.Transaction
		typ string
	)
	err := row.Scan(&t.ID, &t.PositionID, &typ, &t.Quantity, &t.Price, &t.Fee, &t.Date, &t.CreatedAt, &t.Memo)
	if err != nil {
		return nil, errors.Wrap(err, "scan transaction")
	}
	t.Type = domain.TxType(typ)
	t.Date = domain.DateOf(t.Date)
	return &t, nil
}

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

var _ storage.LedgerStore = (*LedgerStore)(nil)

// Get returns the ledger in entry order.
func (s *LedgerStore) Get(ctx context.Context, positionID string) (domain.Ledger, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT transaction_id, delta FROM ledger_entries WHERE position_id = $1 ORDER BY seq`, positionID)
	if err != nil {
		return nil, errors.Wrap(err, "query ledger")
	}
	defer rows.Close()

	ledger := domain.Ledger{}
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.TransactionID, &e.Delta); err != nil {
			return nil, errors.Wrap(err, "scan ledger entry")
		}
		ledger = append(ledger, e)
	}
	return ledger, errors.Wrap(rows.Err(), "iterate ledger")
}

// Put replaces the ledger inside one transaction.
func (s *LedgerStore) Put(ctx context.Context, positionID string, entries domain.Ledger) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin ledger update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM ledger_entries WHERE position_id = $1`, positionID); err != nil {
		return errors.Wrap(err, "clear ledger")
	}

	batch := &pgx.Batch{}
	for i, e := range entries {
		batch.Queue(`INSERT INTO ledger_entries (position_id, transaction_id, seq, delta) VALUES ($1, $2, $3, $4)`,
			positionID, e.TransactionID, i, e.Delta)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "insert ledger entries")
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit ledger update")
}
