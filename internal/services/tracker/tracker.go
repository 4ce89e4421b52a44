// Package tracker runs the valuation pipeline of infinite-buy positions on top of the stores.
// Every mutation sorts the log, folds it, derives T, steps the phase machine and persists the
// derived fields before returning.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/metrics"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"go.uber.org/zap"
)

// maxPasses bounds the recompute loop: the first pass plus one re-entry.
const maxPasses = 2

type priceHistory interface {
	DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error)
}

type publisher interface {
	Publish(ctx context.Context, e domain.PositionEvent) error
}

// Defaults fill the optional fields of NewPositionRequest.
type Defaults struct {
	Version         domain.StrategyVersion
	DivisionCount   int
	TargetProfitPct decimal.Decimal
	CompoundingRate decimal.Decimal
}

// DefaultDefaults mirror the domain defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Version:         domain.Version22,
		DivisionCount:   domain.DefaultDivisionCount,
		TargetProfitPct: domain.DefaultTargetProfitPct,
		CompoundingRate: domain.DefaultCompoundingRate,
	}
}

// Tracker serializes mutations per position and keeps the cached fields in step with the log.
type Tracker struct {
	positions storage.PositionStore
	txs       storage.TransactionStore
	ledgers   storage.LedgerStore
	prices    priceHistory
	pub       publisher
	m         *metrics.Metrics
	l         *zap.Logger
	defaults  Defaults

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New creates a Tracker. prices may be nil, in which case guidance runs without a previous close.
func New(l *zap.Logger, stores storage.Stores, prices priceHistory, pub publisher, m *metrics.Metrics, defaults Defaults) *Tracker {
	if m == nil {
		m = metrics.New()
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	return &Tracker{
		positions: stores.Positions,
		txs:       stores.Transactions,
		ledgers:   stores.Ledgers,
		prices:    prices,
		pub:       pub,
		m:         m,
		l:         l,
		defaults:  defaults,
		locks:     make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.PositionEvent) error { return nil }

// lock holds the mutex of one position until the returned func is called.
func (t *Tracker) lock(id string) func() {
	t.mu.Lock()
	m, ok := t.locks[id]
	if !ok {
		m = &sync.Mutex{}
		t.locks[id] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	delete(t.locks, id)
	t.mu.Unlock()
}

// NewPositionRequest creates a position. Zero DivisionCount, empty Version and nil
// pointers take the tracker defaults.
type NewPositionRequest struct {
	Name            string           `json:"name"`
	Version         string           `json:"version"`
	Capital         decimal.Decimal  `json:"capital"`
	DivisionCount   int              `json:"division_count"`
	TargetProfitPct *decimal.Decimal `json:"target_profit_pct"`
	CompoundingRate *decimal.Decimal `json:"compounding_rate"`
}

// CreatePosition validates req and stores an empty position.
func (t *Tracker) CreatePosition(ctx context.Context, req NewPositionRequest) (*domain.Position, error) {
	version := t.defaults.Version
	if req.Version != "" {
		v, err := domain.ParseVersion(req.Version)
		if err != nil {
			return nil, err
		}
		version = v
	}

	division := req.DivisionCount
	if division == 0 {
		division = t.defaults.DivisionCount
	}
	goal := t.defaults.TargetProfitPct
	if req.TargetProfitPct != nil {
		goal = *req.TargetProfitPct
	}
	rate := t.defaults.CompoundingRate
	if req.CompoundingRate != nil {
		rate = *req.CompoundingRate
	}

	p, err := domain.NewPosition(req.Name, version, req.Capital, division, goal, rate)
	if err != nil {
		return nil, err
	}

	id, err := t.positions.Create(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "create position")
	}
	p.ID = id

	t.m.TrackedPositions.Inc()
	t.l.Info("position created",
		zap.String("position_id", id),
		zap.String("name", p.Name),
		zap.String("version", p.Version.String()),
		zap.String("capital", p.Capital.String()),
		zap.Int("division_count", p.DivisionCount))
	t.publish(ctx, domain.NewPositionEvent(domain.EventPositionCreated, p))

	return p, nil
}

// GetPositions returns every position as stored.
func (t *Tracker) GetPositions(ctx context.Context) ([]*domain.Position, error) {
	ps, err := t.positions.GetAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list positions")
	}
	t.m.TrackedPositions.Set(float64(len(ps)))
	return ps, nil
}

// DeletePosition removes the position with its transactions and ledger.
func (t *Tracker) DeletePosition(ctx context.Context, id string) error {
	unlock := t.lock(id)
	defer unlock()

	p, err := t.positions.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := t.txs.DeleteByPositionID(ctx, id); err != nil {
		return errors.Wrap(err, "delete transactions")
	}
	if err := t.ledgers.Put(ctx, id, nil); err != nil {
		return errors.Wrap(err, "delete ledger")
	}
	if err := t.positions.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete position")
	}
	t.forget(id)

	t.m.TrackedPositions.Dec()
	t.l.Info("position deleted", zap.String("position_id", id), zap.String("name", p.Name))
	t.publish(ctx, domain.NewPositionEvent(domain.EventPositionDeleted, p))

	return nil
}

// Transactions returns the log of a position in chronological order.
func (t *Tracker) Transactions(ctx context.Context, id string) ([]domain.Transaction, error) {
	if _, err := t.positions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	txs, err := t.loadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.SortedCopy(txs), nil
}

// Load recomputes the position from its log and persists the derived fields.
func (t *Tracker) Load(ctx context.Context, id string) (*Snapshot, error) {
	unlock := t.lock(id)
	defer unlock()

	p, err := t.positions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	txs, err := t.loadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}

	snap, err := t.recompute(ctx, p, txs)
	if err != nil {
		return nil, err
	}

	if p.Version.Compounds() {
		ledger, err := t.ledgers.Get(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "load ledger")
		}
		if err := ledger.Verify(p); err != nil {
			snap.warn(err)
			t.l.Warn("ledger does not match capital", zap.String("position_id", id), zap.Error(err))
		}
	}

	return snap, nil
}

// Settle closes a position that has history and no shares left. It cannot be undone.
func (t *Tracker) Settle(ctx context.Context, id string, date time.Time) (*domain.Position, error) {
	unlock := t.lock(id)
	defer unlock()

	p, err := t.positions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Settled {
		return nil, domain.ErrPositionSettled
	}

	txs, err := t.loadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, errors.Wrap(domain.ErrNotSettleable, "position has no transactions")
	}
	v := domain.ReduceSorted(txs, p.Splits)
	if !v.Quantity.IsZero() {
		return nil, errors.Wrapf(domain.ErrNotSettleable, "position still holds %s", v.Quantity)
	}

	if date.IsZero() {
		date = t.now()
	}
	p.Settle(date)

	err = t.positions.Update(ctx, id, domain.PositionPatch{
		Name:      &p.Name,
		Settled:   &p.Settled,
		SettledAt: p.SettledAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "persist settlement")
	}

	t.l.Info("position settled", zap.String("position_id", id), zap.String("name", p.Name))
	t.publish(ctx, domain.NewPositionEvent(domain.EventPositionSettled, p))

	return p, nil
}

// Split records a stock split and recomputes the position.
func (t *Tracker) Split(ctx context.Context, id string, ratio decimal.Decimal, date time.Time) (*Snapshot, error) {
	unlock := t.lock(id)
	defer unlock()

	p, err := t.positions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Settled {
		return nil, domain.ErrPositionSettled
	}
	s, err := domain.NewStockSplit(ratio, date)
	if err != nil {
		return nil, err
	}
	p.AddSplit(s)

	err = t.positions.Update(ctx, id, domain.PositionPatch{SplitRatio: &p.SplitRatio, Splits: p.Splits})
	if err != nil {
		return nil, errors.Wrap(err, "persist split")
	}

	txs, err := t.loadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := t.recompute(ctx, p, txs)
	if err != nil {
		return nil, err
	}

	t.l.Info("split recorded",
		zap.String("position_id", id),
		zap.String("ratio", ratio.String()),
		zap.Time("date", s.Date))
	e := domain.NewPositionEvent(domain.EventPositionSplit, p)
	e.Detail = ratio.String()
	t.publish(ctx, e)

	return snap, nil
}

func (t *Tracker) loadTransactions(ctx context.Context, id string) ([]domain.Transaction, error) {
	ptrs, err := t.txs.GetByPositionID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load transactions")
	}
	return domain.Deref(ptrs), nil
}

func (t *Tracker) publish(ctx context.Context, e domain.PositionEvent) {
	if err := t.pub.Publish(ctx, e); err != nil {
		t.l.Warn("failed to publish event",
			zap.String("event_type", string(e.Type)),
			zap.String("position_id", e.PositionID),
			zap.Error(err))
	}
}
