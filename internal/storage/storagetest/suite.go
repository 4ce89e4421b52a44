// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
)

// Factory returns empty stores. Cleanup is the caller's concern.
type Factory func(t *testing.T) storage.Stores

// Run exercises positions, transactions and ledgers against one backend.
func Run(t *testing.T, newStores Factory) {
	t.Run("position lifecycle", func(t *testing.T) { positionLifecycle(t, newStores(t)) })
	t.Run("transaction log", func(t *testing.T) { transactionLog(t, newStores(t)) })
	t.Run("ledger", func(t *testing.T) { ledger(t, newStores(t)) })
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewPosition returns a valid 3.0 position for store tests.
func NewPosition(t *testing.T, name string) *domain.Position {
	t.Helper()
	p, err := domain.NewPosition(name, domain.Version30, d("10000"), 20, d("15"), d("0.5"))
	require.NoError(t, err)
	return p
}

func positionLifecycle(t *testing.T, s storage.Stores) {
	ctx := context.Background()

	first := NewPosition(t, "SOXL")
	id, err := s.Positions.Create(ctx, first)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	second := NewPosition(t, "TQQQ")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	secondID, err := s.Positions.Create(ctx, second)
	require.NoError(t, err)

	got, err := s.Positions.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "SOXL", got.Name)
	require.Equal(t, domain.Version30, got.Version)
	require.True(t, got.Capital.Equal(d("10000")))
	require.True(t, got.PerTradeAmount.Equal(d("500")))
	require.Equal(t, -1, got.PhaseStartIndex)

	qty, avg := d("42"), d("11.37")
	phase, start := domain.PhaseQuarterCut, 3
	settledAt := time.Date(2025, time.May, 26, 0, 0, 0, 0, time.UTC)
	splits := []domain.StockSplit{{Date: settledAt, Ratio: d("2")}}
	require.NoError(t, s.Positions.Update(ctx, id, domain.PositionPatch{
		Quantity:        &qty,
		AveragePrice:    &avg,
		Phase:           &phase,
		PhaseStartIndex: &start,
		SettledAt:       &settledAt,
		Splits:          splits,
	}))

	got, err = s.Positions.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, got.Quantity.Equal(qty))
	require.True(t, got.AveragePrice.Equal(avg))
	require.Equal(t, domain.PhaseQuarterCut, got.Phase)
	require.Equal(t, 3, got.PhaseStartIndex)
	require.NotNil(t, got.SettledAt)
	require.True(t, got.SettledAt.Equal(settledAt))
	require.Len(t, got.Splits, 1)
	require.True(t, got.Splits[0].Ratio.Equal(d("2")))
	require.Equal(t, "SOXL", got.Name)

	all, err := s.Positions.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, id, all[0].ID)
	require.Equal(t, secondID, all[1].ID)

	require.NoError(t, s.Positions.Delete(ctx, id))
	_, err = s.Positions.GetByID(ctx, id)
	require.True(t, errors.Is(err, storage.ErrNotFound))
	require.True(t, errors.Is(s.Positions.Update(ctx, id, domain.PositionPatch{}), storage.ErrNotFound))
	require.True(t, errors.Is(s.Positions.Delete(ctx, id), storage.ErrNotFound))
}

func transactionLog(t *testing.T, s storage.Stores) {
	ctx := context.Background()

	posID, err := s.Positions.Create(ctx, NewPosition(t, "SOXL"))
	require.NoError(t, err)

	date := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	buy, err := domain.NewTransaction(domain.TxBuy, d("10"), d("20.5"), d("0.1"), date, "")
	require.NoError(t, err)
	sell, err := domain.NewTransaction(domain.TxSell, d("4"), d("22"), d("0"), date.AddDate(0, 0, 1), "MOC")
	require.NoError(t, err)

	buyID, err := s.Transactions.Add(ctx, posID, buy)
	require.NoError(t, err)
	sellID, err := s.Transactions.Add(ctx, posID, sell)
	require.NoError(t, err)
	require.NotEqual(t, buyID, sellID)

	txs, err := s.Transactions.GetByPositionID(ctx, posID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, buyID, txs[0].ID)
	require.Equal(t, posID, txs[0].PositionID)
	require.Equal(t, domain.TxSell, txs[1].Type)
	require.True(t, txs[1].Quantity.Equal(d("-4")))
	require.True(t, txs[1].Date.Equal(date.AddDate(0, 0, 1)))
	require.Equal(t, "MOC", txs[1].Memo)

	require.NoError(t, s.Transactions.Delete(ctx, buyID))
	require.True(t, errors.Is(s.Transactions.Delete(ctx, buyID), storage.ErrNotFound))

	txs, err = s.Transactions.GetByPositionID(ctx, posID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, sellID, txs[0].ID)

	require.NoError(t, s.Transactions.DeleteByPositionID(ctx, posID))
	txs, err = s.Transactions.GetByPositionID(ctx, posID)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func ledger(t *testing.T, s storage.Stores) {
	ctx := context.Background()

	posID, err := s.Positions.Create(ctx, NewPosition(t, "TQQQ"))
	require.NoError(t, err)

	got, err := s.Ledgers.Get(ctx, posID)
	require.NoError(t, err)
	require.Empty(t, got)

	entries := domain.Ledger{
		{TransactionID: "a", Delta: d("12.5")},
		{TransactionID: "b", Delta: d("0.0000001")},
	}
	require.NoError(t, s.Ledgers.Put(ctx, posID, entries))

	got, err = s.Ledgers.Get(ctx, posID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got.Sum().Equal(d("12.5000001")))

	require.NoError(t, s.Ledgers.Put(ctx, posID, entries.Remove("a")))
	got, err = s.Ledgers.Get(ctx, posID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].TransactionID)

	require.NoError(t, s.Ledgers.Put(ctx, posID, nil))
	got, err = s.Ledgers.Get(ctx, posID)
	require.NoError(t, err)
	require.Empty(t, got)
}
