package tracker

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"go.uber.org/zap"
)

var errDiskFull = errors.New("disk full")

// capitalFailingPositions refuses every update that touches the capital.
type capitalFailingPositions struct {
	storage.PositionStore
	fail bool
}

func (s *capitalFailingPositions) Update(ctx context.Context, id string, patch domain.PositionPatch) error {
	if s.fail && patch.Capital != nil {
		return errDiskFull
	}
	return s.PositionStore.Update(ctx, id, patch)
}

// deleteFailingTransactions refuses to remove transactions.
type deleteFailingTransactions struct {
	storage.TransactionStore
	fail bool
}

func (s *deleteFailingTransactions) Delete(ctx context.Context, id string) error {
	if s.fail {
		return errDiskFull
	}
	return s.TransactionStore.Delete(ctx, id)
}

func (f *fixture) withFailingStores() (*capitalFailingPositions, *deleteFailingTransactions) {
	positions := &capitalFailingPositions{PositionStore: f.stores.Positions}
	txs := &deleteFailingTransactions{TransactionStore: f.stores.Transactions}
	stores := f.stores
	stores.Positions, stores.Transactions = positions, txs
	f.tr = New(zap.NewNop(), stores, f.prices, f.bus, f.m, DefaultDefaults())
	return positions, txs
}

func TestTracker_AddRollsBackWhenCapitalCannotBeStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	positions, _ := f.withFailingStores()
	p := f.create(t, "TQQQ", "3.0", "10000")
	f.add(t, p.ID, domain.TxBuy, "100", "10", 2)

	positions.fail = true
	_, err := f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
		Type: domain.TxSell, Quantity: dec("10"), Price: dec("12"), Date: day(3),
	})
	require.ErrorIs(t, err, errDiskFull)
	positions.fail = false

	ledger, err := f.stores.Ledgers.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, ledger, "ledger entry is not orphaned")

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Capital.Equal(dec("10000")))

	snap, err := f.tr.Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Transactions, 1, "the sell is rolled back")
	assert.Empty(t, snap.Warnings)
	assert.Equal(t, float64(0), testutil.ToFloat64(f.m.Compounding.WithLabelValues("apply")))
}

func TestTracker_FailedDeleteKeepsCompounding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, txs := f.withFailingStores()
	p := f.create(t, "TQQQ", "3.0", "10000")
	f.add(t, p.ID, domain.TxBuy, "100", "10", 2)
	res := f.add(t, p.ID, domain.TxSell, "10", "12", 3)
	require.NotNil(t, res.Compounded)

	txs.fail = true
	_, err := f.tr.DeleteTransaction(ctx, p.ID, res.Transaction.ID)
	require.ErrorIs(t, err, errDiskFull)
	txs.fail = false

	ledger, err := f.stores.Ledgers.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1, "ledger entry survives the failed delete")
	assert.Equal(t, res.Transaction.ID, ledger[0].TransactionID)

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Capital.Equal(dec("10010")), stored.Capital.String())
	assert.True(t, stored.PerTradeAmount.Equal(dec("500.5")))
	assert.Equal(t, float64(0), testutil.ToFloat64(f.m.Compounding.WithLabelValues("revert")))

	snap, err := f.tr.DeleteTransaction(ctx, p.ID, res.Transaction.ID)
	require.NoError(t, err, "a retry succeeds once the store recovers")
	assert.Empty(t, snap.Warnings)
	assert.True(t, snap.Position.Capital.Equal(dec("10000")))
}
