package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"github.com/vadiminshakov/infbuy/internal/storage/storagetest"
)

// setupTestDB starts a PostgreSQL container and applies the embedded migrations.
func setupTestDB(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	// migrations are idempotent
	require.NoError(t, Migrate(ctx, pool))

	return pool
}

func TestStores(t *testing.T) {
	pool := setupTestDB(t)

	storagetest.Run(t, func(t *testing.T) storage.Stores {
		_, err := pool.Exec(context.Background(), `TRUNCATE positions CASCADE`)
		require.NoError(t, err)
		return storage.Stores{
			Positions:    NewPositionStore(pool),
			Transactions: NewTransactionStore(pool),
			Ledgers:      NewLedgerStore(pool),
			Close:        func() error { return nil },
		}
	})
}

func TestPositionStore_DeleteCascades(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	positions := NewPositionStore(pool)
	txs := NewTransactionStore(pool)
	ledgers := NewLedgerStore(pool)

	id, err := positions.Create(ctx, storagetest.NewPosition(t, "SOXL"))
	require.NoError(t, err)

	buy, err := domain.NewTransaction(domain.TxBuy, decimal.NewFromInt(10), decimal.NewFromInt(20), decimal.Zero, time.Now(), "")
	require.NoError(t, err)
	txID, err := txs.Add(ctx, id, buy)
	require.NoError(t, err)
	require.NoError(t, ledgers.Put(ctx, id, domain.Ledger{{TransactionID: txID, Delta: decimal.NewFromInt(5)}}))

	require.NoError(t, positions.Delete(ctx, id))

	left, err := txs.GetByPositionID(ctx, id)
	require.NoError(t, err)
	require.Empty(t, left)

	ledger, err := ledgers.Get(ctx, id)
	require.NoError(t, err)
	require.Empty(t, ledger)
}

func TestPositionStore_DuplicateID(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	positions := NewPositionStore(pool)

	p := storagetest.NewPosition(t, "SOXL")
	p.ID = "fixed"
	_, err := positions.Create(ctx, p)
	require.NoError(t, err)
	_, err = positions.Create(ctx, p)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}
