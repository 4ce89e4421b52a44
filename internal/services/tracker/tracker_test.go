package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/events"
	"github.com/vadiminshakov/infbuy/internal/metrics"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"github.com/vadiminshakov/infbuy/internal/storage/memory"
	"go.uber.org/zap"
)

type mockPrices struct {
	mock.Mock
}

func (m *mockPrices) DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error) {
	args := m.Called(ctx, ticker)
	closes, _ := args.Get(0).([]domain.DailyClose)
	return closes, args.Error(1)
}

type fixture struct {
	tr     *Tracker
	stores storage.Stores
	prices *mockPrices
	m      *metrics.Metrics
	bus    *events.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stores: memory.New(),
		prices: &mockPrices{},
		m:      metrics.New(),
		bus:    events.NewBroadcaster(256),
	}
	f.tr = New(zap.NewNop(), f.stores, f.prices, f.bus, f.m, DefaultDefaults())
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) create(t *testing.T, name, version, capital string) *domain.Position {
	t.Helper()
	p, err := f.tr.CreatePosition(context.Background(), NewPositionRequest{
		Name:    name,
		Version: version,
		Capital: dec(capital),
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) add(t *testing.T, id string, typ domain.TxType, qty, price string, d int) *TransactionResult {
	t.Helper()
	res, err := f.tr.AddTransaction(context.Background(), id, NewTransactionRequest{
		Type:     typ,
		Quantity: dec(qty),
		Price:    dec(price),
		Date:     day(d),
	})
	require.NoError(t, err)
	return res
}

func TestTracker_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "10000")

	assert.Equal(t, 20, p.DivisionCount)
	assert.True(t, p.PerTradeAmount.Equal(dec("500")))
	assert.True(t, p.TargetProfitPct.Equal(domain.DefaultTargetProfitPct))

	res, err := f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
		Type:     domain.TxBuy,
		Quantity: dec("50"),
		Price:    dec("10"),
		Fee:      dec("1"),
		Date:     day(2),
	})
	require.NoError(t, err)

	assert.True(t, res.Change.Before.Quantity.IsZero())
	assert.True(t, res.Change.After.AveragePrice.Equal(dec("10.02")), res.Change.After.AveragePrice.String())
	assert.True(t, res.Change.After.Quantity.Equal(dec("50")))
	assert.True(t, res.Change.After.TValue.Equal(dec("1.1")), res.Change.After.TValue.String())
	assert.True(t, res.Change.After.CashBalance.Equal(dec("-501")))
	assert.False(t, res.SettlementEligible)
	assert.Equal(t, domain.PhaseNormal, res.Snapshot.Phase)

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.AveragePrice.Equal(dec("10.02")), "derived fields are persisted")
	assert.True(t, stored.Quantity.Equal(dec("50")))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.m.Transactions.WithLabelValues("buy")))
}

func TestTracker_LoadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "TQQQ", "2.2", "10000")
	f.add(t, p.ID, domain.TxBuy, "10", "50", 3)
	f.add(t, p.ID, domain.TxBuy, "12", "45", 2)

	first, err := f.tr.Load(ctx, p.ID)
	require.NoError(t, err)
	second, err := f.tr.Load(ctx, p.ID)
	require.NoError(t, err)

	assert.True(t, first.Valuation.Equal(second.Valuation))
	assert.True(t, first.TValue.Equal(second.TValue))
	require.Len(t, second.Transactions, 2)
	assert.Equal(t, day(2), second.Transactions[0].Date, "log is returned in date order")
}

func TestTracker_PhaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "10000")

	res := f.add(t, p.ID, domain.TxBuy, "960", "10", 2)
	assert.True(t, res.Change.After.TValue.Equal(dec("19.2")))
	assert.Equal(t, domain.PhaseQuarterCut, res.Snapshot.Phase)
	assert.Equal(t, 1, res.Snapshot.Position.PhaseStartIndex)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.m.PhaseTransitions.WithLabelValues("quarter_cut")))

	// below the stop price, so a single sell does not exit
	res = f.add(t, p.ID, domain.TxSell, "240", "8", 3)
	assert.Equal(t, domain.PhaseQuarterCut, res.Snapshot.Phase)
	assert.Equal(t, 1, res.Snapshot.SellsSinceEntry)

	res = f.add(t, p.ID, domain.TxSell, "100", "8", 4)
	assert.Equal(t, domain.PhaseNormal, res.Snapshot.Phase)
	assert.Empty(t, res.Snapshot.Warnings)

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseNormal, stored.Phase)
	assert.Equal(t, -1, stored.PhaseStartIndex)
}

func TestTracker_SecondTransitionIsNotApplied(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "SOXL", "2.2", "10000")

	res := f.add(t, p.ID, domain.TxBuy, "1000", "10", 2)
	require.Equal(t, domain.PhaseQuarterCut, res.Snapshot.Phase)

	f.add(t, p.ID, domain.TxSell, "1", "8", 3)
	res = f.add(t, p.ID, domain.TxSell, "1", "8", 4)

	// two sells exit, T is still above the threshold so the machine wants back in
	assert.Equal(t, domain.PhaseNormal, res.Snapshot.Phase)
	require.Len(t, res.Snapshot.Warnings, 1)
	assert.Contains(t, res.Snapshot.Warnings[0], domain.ErrPhaseReentry.Error())
}

func TestTracker_QuarterCutExitsOnMOCSell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "10000")
	f.add(t, p.ID, domain.TxBuy, "980", "10", 2)

	_, err := f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
		Type: domain.TxSell, Quantity: dec("245"), Price: dec("7"), Date: day(3), Memo: "moc quarter",
	})
	require.NoError(t, err)

	snap, err := f.tr.Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseNormal, snap.Phase)
}

func TestTracker_CompoundingIsReversible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "TQQQ", "3.0", "10000")
	f.add(t, p.ID, domain.TxBuy, "100", "10", 2)

	res := f.add(t, p.ID, domain.TxSell, "10", "12", 3)
	require.NotNil(t, res.Compounded)
	assert.True(t, res.Compounded.Delta.Equal(dec("10")))
	assert.True(t, res.Snapshot.Position.Capital.Equal(dec("10010")))
	assert.True(t, res.Snapshot.Position.PerTradeAmount.Equal(dec("500.5")))

	ledger, err := f.stores.Ledgers.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)

	snap, err := f.tr.DeleteTransaction(ctx, p.ID, res.Transaction.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Warnings)
	assert.True(t, snap.Position.Capital.Equal(dec("10000")), snap.Position.Capital.String())

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Capital.Equal(dec("10000")))
	assert.True(t, stored.PerTradeAmount.Equal(dec("500")))

	ledger, err = f.stores.Ledgers.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, ledger)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.m.Compounding.WithLabelValues("apply")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.m.Compounding.WithLabelValues("revert")))
}

func TestTracker_LossSellDoesNotCompound(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "TQQQ", "3.0", "10000")
	f.add(t, p.ID, domain.TxBuy, "100", "10", 2)

	res := f.add(t, p.ID, domain.TxSell, "10", "9", 3)
	assert.Nil(t, res.Compounded)
	assert.True(t, res.Snapshot.Position.Capital.Equal(dec("10000")))

	snap, err := f.tr.DeleteTransaction(context.Background(), p.ID, res.Transaction.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Warnings)
}

func TestTracker_MissingLedgerEntryIsAWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "TQQQ", "3.0", "10000")
	f.add(t, p.ID, domain.TxBuy, "100", "10", 2)
	res := f.add(t, p.ID, domain.TxSell, "10", "12", 3)

	require.NoError(t, f.stores.Ledgers.Put(ctx, p.ID, nil))

	snap, err := f.tr.DeleteTransaction(ctx, p.ID, res.Transaction.ID)
	require.NoError(t, err, "deletion is not blocked")
	require.NotEmpty(t, snap.Warnings)
	assert.Contains(t, snap.Warnings[0], domain.ErrLedgerInconsistent.Error())
	assert.True(t, snap.Position.Capital.Equal(dec("10010")), "capital is left unadjusted")
	assert.Len(t, snap.Transactions, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.m.LedgerWarnings))

	loaded, err := f.tr.Load(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Warnings, "load reports the capital mismatch")
}

func TestTracker_Settlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "TQQQ", "2.2", "10000")

	_, err := f.tr.Settle(ctx, p.ID, day(1))
	require.ErrorIs(t, err, domain.ErrNotSettleable, "no history")

	f.add(t, p.ID, domain.TxBuy, "10", "10", 2)
	_, err = f.tr.Settle(ctx, p.ID, day(3))
	require.ErrorIs(t, err, domain.ErrNotSettleable, "still holding")

	res := f.add(t, p.ID, domain.TxSell, "10", "11", 3)
	assert.True(t, res.SettlementEligible)
	assert.True(t, res.Snapshot.Valuation.Profit.Equal(dec("10")))

	settled, err := f.tr.Settle(ctx, p.ID, time.Date(2025, 5, 26, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "TQQQ(2025-05-26 settled)", settled.Name)
	assert.True(t, settled.Settled)

	_, err = f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
		Type: domain.TxBuy, Quantity: dec("1"), Price: dec("10"), Date: day(4),
	})
	require.ErrorIs(t, err, domain.ErrPositionSettled)

	_, err = f.tr.DeleteTransaction(ctx, p.ID, res.Transaction.ID)
	require.ErrorIs(t, err, domain.ErrPositionSettled)

	_, err = f.tr.Settle(ctx, p.ID, day(5))
	require.ErrorIs(t, err, domain.ErrPositionSettled)

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "TQQQ", stored.BaseTicker())
	require.NotNil(t, stored.SettledAt)
	assert.Equal(t, time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC), *stored.SettledAt)
}

func TestTracker_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "10000")

	_, err := f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
		Type: domain.TxBuy, Quantity: dec("-1"), Price: dec("10"), Date: day(2),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
		Type: domain.TxSell, Quantity: dec("1"), Price: dec("10"), Date: day(2),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput, "cannot sell more than held")

	_, err = f.tr.AddTransaction(ctx, "missing", NewTransactionRequest{
		Type: domain.TxBuy, Quantity: dec("1"), Price: dec("10"), Date: day(2),
	})
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.tr.DeleteTransaction(ctx, p.ID, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.tr.CreatePosition(ctx, NewPositionRequest{Name: "X", Version: "9.9", Capital: dec("100")})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.tr.CreatePosition(ctx, NewPositionRequest{Name: "", Capital: dec("100")})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	txs, err := f.tr.Transactions(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTracker_CreateUsesRequestOverDefaults(t *testing.T) {
	f := newFixture(t)
	goal, rate := dec("10"), dec("0")
	p, err := f.tr.CreatePosition(context.Background(), NewPositionRequest{
		Name:            "FNGU",
		Version:         "v3.0",
		Capital:         dec("4000"),
		DivisionCount:   40,
		TargetProfitPct: &goal,
		CompoundingRate: &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Version30, p.Version)
	assert.True(t, p.PerTradeAmount.Equal(dec("100")))
	assert.True(t, p.TargetProfitPct.Equal(goal))
	assert.True(t, p.CompoundingRate.IsZero())
}

func TestTracker_Split(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "10000")
	f.add(t, p.ID, domain.TxBuy, "10", "100", 2)

	snap, err := f.tr.Split(ctx, p.ID, dec("2"), day(5))
	require.NoError(t, err)
	assert.True(t, snap.Valuation.Quantity.Equal(dec("20")))
	assert.True(t, snap.Valuation.AveragePrice.Equal(dec("50")))
	assert.True(t, snap.Position.SplitRatio.Equal(dec("2")))

	// a later buy lands after the split
	res := f.add(t, p.ID, domain.TxBuy, "20", "40", 6)
	assert.True(t, res.Change.After.Quantity.Equal(dec("40")))
	assert.True(t, res.Change.After.AveragePrice.Equal(dec("45")))

	_, err = f.tr.Split(ctx, p.ID, dec("1"), day(7))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTracker_DeletePositionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "TQQQ", "3.0", "10000")
	f.add(t, p.ID, domain.TxBuy, "100", "10", 2)
	f.add(t, p.ID, domain.TxSell, "10", "12", 3)

	require.NoError(t, f.tr.DeletePosition(ctx, p.ID))

	_, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	txs, err := f.stores.Transactions.GetByPositionID(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	ledger, err := f.stores.Ledgers.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, ledger)

	require.ErrorIs(t, f.tr.DeletePosition(ctx, p.ID), storage.ErrNotFound)

	all, err := f.tr.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTracker_Guidance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL(2024-01-01 settled)", "2.2", "10000")
	f.prices.On("DailyCloses", mock.Anything, "SOXL").Return([]domain.DailyClose{
		{Date: day(1), Price: dec("9.8")},
		{Date: day(2), Price: dec("10.5")},
	}, nil).Once()

	_, err := f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
		Type: domain.TxBuy, Quantity: dec("50"), Price: dec("10"), Fee: dec("1"), Date: day(2),
	})
	require.NoError(t, err)

	report, err := f.tr.Guidance(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, report.PreviousClose.Equal(dec("10.5")))
	assert.Equal(t, domain.StageFirstHalf, report.Guidance.Stage)

	bigDrop := findRung(t, report.Guidance.Buy, domain.RungBigDrop)
	assert.False(t, bigDrop.Insufficient)
	assert.True(t, bigDrop.Price.Equal(dec("11.76")), bigDrop.Price.String())
	assert.True(t, bigDrop.Quantity.Equal(dec("21")), bigDrop.Quantity.String())
	f.prices.AssertExpectations(t)
}

func TestTracker_GuidanceWithoutPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "10000")
	f.add(t, p.ID, domain.TxBuy, "50", "10", 2)
	f.prices.On("DailyCloses", mock.Anything, "SOXL").Return(nil, errors.New("rate limited"))

	report, err := f.tr.Guidance(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, report.Warnings)
	assert.True(t, findRung(t, report.Guidance.Buy, domain.RungBigDrop).Insufficient)
	assert.False(t, findRung(t, report.Guidance.Buy, domain.RungAverage).Insufficient)

	empty := f.create(t, "TQQQ", "2.2", "10000")
	f.prices.On("DailyCloses", mock.Anything, "TQQQ").Return([]domain.DailyClose{}, nil)
	report, err = f.tr.Guidance(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageEmpty, report.Guidance.Stage)
}

func findRung(t *testing.T, rungs []domain.Rung, kind domain.RungKind) domain.Rung {
	t.Helper()
	for _, r := range rungs {
		if r.Kind == kind {
			return r
		}
	}
	t.Fatalf("rung %s not found", kind)
	return domain.Rung{}
}

func TestTracker_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	ch := f.bus.Subscribe()
	defer f.bus.Unsubscribe(ch)

	p := f.create(t, "TQQQ", "3.0", "10000")
	f.add(t, p.ID, domain.TxBuy, "100", "10", 2)
	f.add(t, p.ID, domain.TxSell, "10", "12", 3)

	var got []domain.EventType
	for len(ch) > 0 {
		got = append(got, (<-ch).Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventPositionCreated,
		domain.EventTransactionAdded,
		domain.EventCapitalCompounded,
		domain.EventTransactionAdded,
	}, got)
}

func TestTracker_ConcurrentAddsAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "100000")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
				Type: domain.TxBuy, Quantity: dec("1"), Price: dec("10"), Date: day(1 + i%5),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := f.tr.Load(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, snap.Valuation.Quantity.Equal(dec("20")))
	assert.Equal(t, 20, snap.Valuation.TransactionCount)

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Quantity.Equal(dec("20")))
}

func TestTracker_DeleteBeforeQuarterCutKeepsWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "10000")

	first := f.add(t, p.ID, domain.TxBuy, "500", "10", 2)
	res := f.add(t, p.ID, domain.TxBuy, "460", "10", 3)
	require.Equal(t, domain.PhaseQuarterCut, res.Snapshot.Phase)
	require.Equal(t, 2, res.Snapshot.Position.PhaseStartIndex)
	f.add(t, p.ID, domain.TxSell, "240", "8", 5)

	snap, err := f.tr.DeleteTransaction(ctx, p.ID, first.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseQuarterCut, snap.Phase)
	assert.Equal(t, 1, snap.SellsSinceEntry, "the sell after entry is still counted")

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PhaseStartIndex)

	res = f.add(t, p.ID, domain.TxSell, "50", "8", 6)
	assert.Equal(t, domain.PhaseNormal, res.Snapshot.Phase, "second sell since entry exits")
	assert.Empty(t, res.Snapshot.Warnings)
}

func TestTracker_BackdatedFillBeforeQuarterCutKeepsWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "SOXL", "2.2", "10000")

	f.add(t, p.ID, domain.TxBuy, "500", "10", 3)
	res := f.add(t, p.ID, domain.TxBuy, "460", "10", 4)
	require.Equal(t, 2, res.Snapshot.Position.PhaseStartIndex)

	res = f.add(t, p.ID, domain.TxBuy, "10", "10", 1)
	assert.Equal(t, domain.PhaseQuarterCut, res.Snapshot.Phase)
	assert.Equal(t, 3, res.Snapshot.Position.PhaseStartIndex)
	assert.Equal(t, 0, res.Snapshot.SellsSinceEntry)

	res = f.add(t, p.ID, domain.TxSell, "240", "8", 5)
	assert.Equal(t, domain.PhaseQuarterCut, res.Snapshot.Phase)
	assert.Equal(t, 1, res.Snapshot.SellsSinceEntry)

	stored, err := f.stores.Positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.PhaseStartIndex)
}

func TestTracker_RejectsBackdatedOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "TQQQ", "3.0", "10000")
	f.add(t, p.ID, domain.TxBuy, "100", "10", 5)

	_, err := f.tr.AddTransaction(ctx, p.ID, NewTransactionRequest{
		Type: domain.TxSell, Quantity: dec("50"), Price: dec("12"), Date: day(2),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput, "nothing was held on that date")

	ledger, err := f.stores.Ledgers.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, ledger)

	snap, err := f.tr.Load(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, snap.Position.Capital.Equal(dec("10000")))
	assert.True(t, snap.Valuation.AveragePrice.Equal(dec("10")))
	assert.Len(t, snap.Transactions, 1)
}

func TestTracker_RejectsDeletingBuyThatFundsASell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "TQQQ", "2.2", "10000")
	funding := f.add(t, p.ID, domain.TxBuy, "100", "10", 2)
	f.add(t, p.ID, domain.TxSell, "60", "12", 4)
	f.add(t, p.ID, domain.TxBuy, "100", "10", 6)

	_, err := f.tr.DeleteTransaction(ctx, p.ID, funding.Transaction.ID)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	txs, err := f.tr.Transactions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}
