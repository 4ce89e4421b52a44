package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ledgerTolerance bounds the drift allowed between capital and its ledger.
var ledgerTolerance = decimal.New(1, -9)

// LedgerEntry records the capital added by one compounding sell.
type LedgerEntry struct {
	TransactionID string          `json:"transaction_id"`
	Delta         decimal.Decimal `json:"delta"`
}

// Ledger lists the compounding deltas applied to a position.
type Ledger []LedgerEntry

// Find returns the entry for txID.
func (l Ledger) Find(txID string) (LedgerEntry, bool) {
	for _, e := range l {
		if e.TransactionID == txID {
			return e, true
		}
	}
	return LedgerEntry{}, false
}

// Remove returns a copy of l without the entry for txID.
func (l Ledger) Remove(txID string) Ledger {
	out := make(Ledger, 0, len(l))
	for _, e := range l {
		if e.TransactionID != txID {
			out = append(out, e)
		}
	}
	return out
}

// Sum adds up every delta.
func (l Ledger) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, e := range l {
		total = total.Add(e.Delta)
	}
	return total
}

// Verify checks that initial capital plus the ledger equals the current capital.
func (l Ledger) Verify(p *Position) error {
	expected := p.InitialCapital.Add(l.Sum())
	if expected.Sub(p.Capital).Abs().GreaterThan(ledgerTolerance) {
		return errors.Wrapf(ErrLedgerInconsistent, "capital %s does not match initial %s plus ledger %s",
			p.Capital, p.InitialCapital, l.Sum())
	}
	return nil
}

// CompoundingDelta is the capital a sell adds back, or false when it does not compound.
func CompoundingDelta(p *Position, sell Transaction, avgAtSale decimal.Decimal) (decimal.Decimal, bool) {
	if !p.Version.Compounds() || !sell.IsSell() || !sell.Price.GreaterThan(avgAtSale) {
		return decimal.Zero, false
	}
	delta := sell.Price.Sub(avgAtSale).Mul(sell.AbsQuantity()).Mul(p.CompoundingRate)
	if delta.IsZero() {
		return decimal.Zero, false
	}
	return delta, true
}

// Compound grows the capital for a profitable sell and returns the ledger entry to store.
func Compound(p *Position, sell Transaction, avgAtSale decimal.Decimal) (LedgerEntry, bool) {
	delta, ok := CompoundingDelta(p, sell, avgAtSale)
	if !ok {
		return LedgerEntry{}, false
	}
	p.SetCapital(p.Capital.Add(delta))

	return LedgerEntry{TransactionID: sell.ID, Delta: delta}, true
}

// Reverse undoes the compounding of a deleted sell. When the sell should have
// compounded but its entry is missing, capital is left alone and ErrLedgerInconsistent is returned.
func Reverse(p *Position, ledger Ledger, txID string, wouldHaveCompounded bool) (Ledger, error) {
	entry, ok := ledger.Find(txID)
	if !ok {
		if wouldHaveCompounded {
			return ledger, errors.Wrapf(ErrLedgerInconsistent, "transaction %s", txID)
		}
		return ledger, nil
	}
	p.SetCapital(p.Capital.Sub(entry.Delta))

	return ledger.Remove(txID), nil
}

// AverageBefore replays txs up to, but excluding, txID and returns the average price at that point.
func AverageBefore(txs []Transaction, splits []StockSplit, txID string) (decimal.Decimal, bool) {
	sorted := SortedCopy(txs)
	for i, t := range sorted {
		if t.ID == txID {
			v := Reduce(sorted[:i], splitsThrough(splits, t))
			return v.AveragePrice, true
		}
	}
	return decimal.Zero, false
}

// splitsThrough keeps the splits that take effect before t is applied.
func splitsThrough(splits []StockSplit, t Transaction) []StockSplit {
	out := make([]StockSplit, 0, len(splits))
	for _, s := range splits {
		if !s.Date.After(t.Date) {
			out = append(out, s)
		}
	}
	return out
}
