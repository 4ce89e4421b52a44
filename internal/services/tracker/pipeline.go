package tracker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"go.uber.org/zap"
)

// Snapshot is the state of a position right after a recompute.
type Snapshot struct {
	Position        *domain.Position     `json:"position"`
	Valuation       domain.Valuation     `json:"valuation"`
	TValue          decimal.Decimal      `json:"t_value"`
	Phase           domain.Phase         `json:"phase"`
	SellsSinceEntry int                  `json:"sells_since_entry"`
	Transactions    []domain.Transaction `json:"transactions"`
	Warnings        []string             `json:"warnings,omitempty"`
}

func (s *Snapshot) warn(err error) {
	s.Warnings = append(s.Warnings, err.Error())
}

// Figures are the numbers shown before and after an entry.
type Figures struct {
	AveragePrice decimal.Decimal `json:"average_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TValue       decimal.Decimal `json:"t_value"`
	CashBalance  decimal.Decimal `json:"cash_balance"`
	Profit       decimal.Decimal `json:"profit"`
}

// Change pairs the figures around a mutation.
type Change struct {
	Before Figures `json:"before"`
	After  Figures `json:"after"`
}

func figuresOf(v domain.Valuation, perTrade decimal.Decimal) Figures {
	return Figures{
		AveragePrice: v.AveragePrice,
		Quantity:     v.Quantity,
		TValue:       domain.TValue(v.AveragePrice, v.Quantity, perTrade),
		CashBalance:  v.CashBalance,
		Profit:       v.Profit,
	}
}

// phaseShift re-anchors the quarter-cut window after an insert or removal at a sorted index.
type phaseShift struct {
	at, delta int
}

// recompute runs sort, reduce, T and the phase machine over txs, then persists what changed.
// p is updated in place. A transition in the second pass is reported and not applied.
func (t *Tracker) recompute(ctx context.Context, p *domain.Position, txs []domain.Transaction) (*Snapshot, error) {
	return t.recomputeShifted(ctx, p, txs, phaseShift{})
}

func (t *Tracker) recomputeShifted(ctx context.Context, p *domain.Position, txs []domain.Transaction, shift phaseShift) (*Snapshot, error) {
	sorted := domain.SortedCopy(txs)
	stored := p.Clone()
	state := p.PhaseState().Shift(shift.at, shift.delta)
	snap := &Snapshot{Position: p, Transactions: sorted}

	var (
		v  domain.Valuation
		tv decimal.Decimal
	)
	for pass := 0; pass < maxPasses; pass++ {
		v = domain.Reduce(sorted, p.Splits)
		tv = domain.TValue(v.AveragePrice, v.Quantity, p.PerTradeAmount)

		next, tr := state.Evaluate(domain.PhaseInput{
			Version:         p.Version,
			DivisionCount:   p.DivisionCount,
			TValue:          tv,
			TargetProfitPct: p.TargetProfitPct,
			AveragePrice:    v.AveragePrice,
			Transactions:    sorted,
		})
		if !tr.Changed() {
			state = next
			break
		}
		if pass == maxPasses-1 {
			err := errors.Wrapf(domain.ErrPhaseReentry, "%s to %s skipped", state.Phase, next.Phase)
			snap.warn(err)
			t.l.Warn("phase transition not applied",
				zap.String("position_id", p.ID),
				zap.String("phase", state.Phase.String()),
				zap.String("skipped", next.Phase.String()),
				zap.Error(err))
			break
		}

		t.l.Info("phase transition",
			zap.String("position_id", p.ID),
			zap.String("from", state.Phase.String()),
			zap.String("to", next.Phase.String()),
			zap.String("reason", string(tr.Reason)),
			zap.String("t_value", tv.String()),
			zap.Int("start_index", next.StartIndex))
		t.m.PhaseTransitions.WithLabelValues(next.Phase.String()).Inc()
		state = next
	}

	p.ApplyValuation(v)
	p.ApplyPhase(state)
	t.m.Recomputes.Inc()

	if err := t.persistDerived(ctx, stored, p); err != nil {
		return nil, err
	}
	if stored.Phase != p.Phase {
		e := domain.NewPositionEvent(domain.EventPhaseChanged, p)
		e.Detail = stored.Phase.String() + "->" + p.Phase.String()
		t.publish(ctx, e)
	}

	snap.Valuation = v
	snap.TValue = tv
	snap.Phase = state.Phase
	if state.Phase == domain.PhaseQuarterCut {
		snap.SellsSinceEntry = domain.SellsSince(sorted, state.StartIndex)
	}
	return snap, nil
}

// persistDerived writes the cached fields that differ from the stored copy.
func (t *Tracker) persistDerived(ctx context.Context, stored, p *domain.Position) error {
	var (
		patch   domain.PositionPatch
		changed bool
	)
	setDec := func(dst **decimal.Decimal, old, cur decimal.Decimal) {
		if !old.Equal(cur) {
			c := cur
			*dst = &c
			changed = true
		}
	}
	setDec(&patch.Quantity, stored.Quantity, p.Quantity)
	setDec(&patch.AveragePrice, stored.AveragePrice, p.AveragePrice)
	setDec(&patch.Profit, stored.Profit, p.Profit)
	setDec(&patch.CashBalance, stored.CashBalance, p.CashBalance)
	if stored.Phase != p.Phase || stored.PhaseStartIndex != p.PhaseStartIndex {
		phase, start := p.Phase, p.PhaseStartIndex
		patch.Phase, patch.PhaseStartIndex = &phase, &start
		changed = true
	}
	if !changed {
		return nil
	}

	if err := t.positions.Update(ctx, p.ID, patch); err != nil {
		return errors.Wrap(err, "persist derived fields")
	}
	return nil
}

// NewTransactionRequest is one fill entered by the user.
type NewTransactionRequest struct {
	Type     domain.TxType
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Fee      decimal.Decimal
	Date     time.Time
	Memo     string
}

// TransactionResult reports an accepted fill.
type TransactionResult struct {
	Transaction        domain.Transaction  `json:"transaction"`
	Snapshot           *Snapshot           `json:"snapshot"`
	Change             Change              `json:"change"`
	Compounded         *domain.LedgerEntry `json:"compounded,omitempty"`
	SettlementEligible bool                `json:"settlement_eligible"`
}


// AddTransaction records a fill, compounds profitable 3.0 sells and recomputes the position.
func (t *Tracker) AddTransaction(ctx context.Context, id string, req NewTransactionRequest) (*TransactionResult, error) {
	unlock := t.lock(id)
	defer unlock()

	p, err := t.positions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Settled {
		return nil, domain.ErrPositionSettled
	}

	tx, err := domain.NewTransaction(req.Type, req.Quantity, req.Price, req.Fee, req.Date, req.Memo)
	if err != nil {
		return nil, err
	}
	tx.PositionID = id

	existing, err := t.loadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	before := figuresOf(domain.ReduceSorted(existing, p.Splits), p.PerTradeAmount)

	if tx.IsSell() {
		candidate := append(append([]domain.Transaction(nil), existing...), *tx)
		if bad, over := domain.Oversold(candidate, p.Splits); over {
			return nil, errors.Wrapf(domain.ErrInvalidInput, "sell of %s on %s exceeds the quantity held at that date",
				bad.AbsQuantity(), bad.Date.Format(time.DateOnly))
		}
	}

	txID, err := t.txs.Add(ctx, id, tx)
	if err != nil {
		return nil, errors.Wrap(err, "store transaction")
	}
	tx.ID = txID
	all := append(existing, *tx)

	t.m.Transactions.WithLabelValues(string(tx.Type)).Inc()
	t.l.Info("transaction added",
		zap.String("position_id", id),
		zap.String("transaction_id", txID),
		zap.String("type", string(tx.Type)),
		zap.String("quantity", tx.Quantity.String()),
		zap.String("price", tx.Price.String()))

	res := &TransactionResult{}
	if tx.IsSell() && p.Version.Compounds() {
		entry, err := t.compound(ctx, p, all, *tx)
		if err != nil {
			if rbErr := t.txs.Delete(ctx, txID); rbErr != nil {
				t.l.Error("failed to roll back transaction", zap.String("transaction_id", txID), zap.Error(rbErr))
			}
			return nil, err
		}
		res.Compounded = entry
	}

	snap, err := t.recomputeShifted(ctx, p, all, phaseShift{at: sortedIndex(all, txID), delta: 1})
	if err != nil {
		return nil, err
	}

	res.Transaction = *tx
	res.Snapshot = snap
	res.Change = Change{Before: before, After: figuresOf(snap.Valuation, p.PerTradeAmount)}
	res.SettlementEligible = tx.IsSell() && snap.Valuation.Quantity.IsZero()

	e := domain.NewPositionEvent(domain.EventTransactionAdded, p)
	e.TransactionID = txID
	t.publish(ctx, e)

	return res, nil
}

func sortedIndex(txs []domain.Transaction, txID string) int {
	for i, tx := range domain.SortedCopy(txs) {
		if tx.ID == txID {
			return i
		}
	}
	return len(txs)
}

// capitalUndo is the ledger and capital captured before a compounding change.
type capitalUndo struct {
	ledger   domain.Ledger
	capital  decimal.Decimal
	perTrade decimal.Decimal
}

func captureCapital(p *domain.Position, ledger domain.Ledger) capitalUndo {
	return capitalUndo{
		ledger:   append(domain.Ledger(nil), ledger...),
		capital:  p.Capital,
		perTrade: p.PerTradeAmount,
	}
}

// restoreCapital puts back the captured state in memory and, when persisted is set, in the stores.
func (t *Tracker) restoreCapital(ctx context.Context, p *domain.Position, u capitalUndo, persisted bool) {
	p.Capital, p.PerTradeAmount = u.capital, u.perTrade
	if !persisted {
		return
	}
	if err := t.ledgers.Put(ctx, p.ID, u.ledger); err != nil {
		t.l.Error("failed to restore ledger", zap.String("position_id", p.ID), zap.Error(err))
	}
	if err := t.persistCapital(ctx, p); err != nil {
		t.l.Error("failed to restore capital", zap.String("position_id", p.ID), zap.Error(err))
	}
}

// compound grows the capital for a profitable sell and stores the ledger entry.
// On a storage failure the ledger and capital are left as they were.
func (t *Tracker) compound(ctx context.Context, p *domain.Position, all []domain.Transaction, sell domain.Transaction) (*domain.LedgerEntry, error) {
	avg, ok := domain.AverageBefore(all, p.Splits, sell.ID)
	if !ok {
		return nil, nil
	}
	if _, ok := domain.CompoundingDelta(p, sell, avg); !ok {
		return nil, nil
	}

	ledger, err := t.ledgers.Get(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load ledger")
	}
	undo := captureCapital(p, ledger)
	entry, _ := domain.Compound(p, sell, avg)

	if err := t.ledgers.Put(ctx, p.ID, append(ledger, entry)); err != nil {
		t.restoreCapital(ctx, p, undo, false)
		return nil, errors.Wrap(err, "store ledger")
	}
	if err := t.persistCapital(ctx, p); err != nil {
		t.restoreCapital(ctx, p, undo, true)
		return nil, err
	}

	t.m.Compounding.WithLabelValues("apply").Inc()
	t.l.Info("capital compounded",
		zap.String("position_id", p.ID),
		zap.String("transaction_id", sell.ID),
		zap.String("average_at_sale", avg.String()),
		zap.String("delta", entry.Delta.String()),
		zap.String("capital", p.Capital.String()))
	e := domain.NewPositionEvent(domain.EventCapitalCompounded, p)
	e.TransactionID = sell.ID
	e.Detail = entry.Delta.String()
	t.publish(ctx, e)

	return &entry, nil
}

func (t *Tracker) persistCapital(ctx context.Context, p *domain.Position) error {
	capital, perTrade := p.Capital, p.PerTradeAmount
	err := t.positions.Update(ctx, p.ID, domain.PositionPatch{Capital: &capital, PerTradeAmount: &perTrade})
	return errors.Wrap(err, "persist capital")
}

// DeleteTransaction removes a fill, reverses its compounding and recomputes the position.
// A missing ledger entry is reported as a warning and does not block the deletion.
func (t *Tracker) DeleteTransaction(ctx context.Context, id, txID string) (*Snapshot, error) {
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
	idx := -1
	for i, tx := range txs {
		if tx.ID == txID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.Wrapf(storage.ErrNotFound, "transaction %s", txID)
	}
	target := txs[idx]
	at := sortedIndex(txs, txID)
	remaining := append(append([]domain.Transaction(nil), txs[:idx]...), txs[idx+1:]...)

	if target.IsBuy() {
		if bad, over := domain.Oversold(remaining, p.Splits); over {
			return nil, errors.Wrapf(domain.ErrInvalidInput, "removing the buy leaves the sell of %s on %s without holdings",
				bad.AbsQuantity(), bad.Date.Format(time.DateOnly))
		}
	}

	var (
		warnings []error
		reverted *reversal
	)
	if target.IsSell() && p.Version.Compounds() {
		reverted, err = t.reverse(ctx, p, txs, target)
		if err != nil {
			if !errors.Is(err, domain.ErrLedgerInconsistent) {
				return nil, err
			}
			warnings = append(warnings, err)
		}
	}

	if err := t.txs.Delete(ctx, txID); err != nil {
		if reverted != nil {
			t.restoreCapital(ctx, p, reverted.undo, true)
		}
		return nil, errors.Wrap(err, "delete transaction")
	}
	if reverted != nil {
		t.reverted(ctx, p, reverted.entry)
	}

	snap, err := t.recomputeShifted(ctx, p, remaining, phaseShift{at: at, delta: -1})
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		snap.warn(w)
	}

	t.l.Info("transaction deleted", zap.String("position_id", id), zap.String("transaction_id", txID))
	e := domain.NewPositionEvent(domain.EventTransactionDeleted, p)
	e.TransactionID = txID
	t.publish(ctx, e)

	return snap, nil
}

// reversal is a persisted compounding revert that is only announced once the sell is gone.
type reversal struct {
	entry domain.LedgerEntry
	undo  capitalUndo
}

// reverse removes the ledger entry of sell and takes its delta back out of the capital.
// It returns nil when the sell never compounded.
func (t *Tracker) reverse(ctx context.Context, p *domain.Position, txs []domain.Transaction, sell domain.Transaction) (*reversal, error) {
	ledger, err := t.ledgers.Get(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load ledger")
	}

	avg, _ := domain.AverageBefore(txs, p.Splits, sell.ID)
	_, would := domain.CompoundingDelta(p, sell, avg)
	entry, found := ledger.Find(sell.ID)
	undo := captureCapital(p, ledger)

	rest, err := domain.Reverse(p, ledger, sell.ID, would)
	if err != nil {
		t.m.LedgerWarnings.Inc()
		t.l.Warn("compounding ledger entry missing, capital left unchanged",
			zap.String("position_id", p.ID),
			zap.String("transaction_id", sell.ID),
			zap.Error(err))
		return nil, err
	}
	if !found {
		return nil, nil
	}

	if err := t.ledgers.Put(ctx, p.ID, rest); err != nil {
		t.restoreCapital(ctx, p, undo, false)
		return nil, errors.Wrap(err, "store ledger")
	}
	if err := t.persistCapital(ctx, p); err != nil {
		t.restoreCapital(ctx, p, undo, true)
		return nil, err
	}

	return &reversal{entry: entry, undo: undo}, nil
}

func (t *Tracker) reverted(ctx context.Context, p *domain.Position, entry domain.LedgerEntry) {
	t.m.Compounding.WithLabelValues("revert").Inc()
	t.l.Info("compounding reverted",
		zap.String("position_id", p.ID),
		zap.String("transaction_id", entry.TransactionID),
		zap.String("delta", entry.Delta.String()),
		zap.String("capital", p.Capital.String()))
	e := domain.NewPositionEvent(domain.EventCapitalReverted, p)
	e.TransactionID = entry.TransactionID
	e.Detail = entry.Delta.String()
	t.publish(ctx, e)
}
