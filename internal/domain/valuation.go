package domain

import "github.com/shopspring/decimal"

// Valuation is the fold of a position's transaction log.
type Valuation struct {
	AveragePrice     decimal.Decimal `json:"average_price"`
	Quantity         decimal.Decimal `json:"quantity"`
	Profit           decimal.Decimal `json:"profit"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	TransactionCount int             `json:"transaction_count"`
	SellCount        int             `json:"sell_count"`
}

// Step folds one transaction into v.
// Buy fees go into the cost basis; sell fees reduce realized profit. Sells never move the average.
func Step(v Valuation, t Transaction) Valuation {
	switch t.Type {
	case TxBuy:
		cost := t.Price.Mul(t.Quantity).Add(t.Fee)
		newQty := v.Quantity.Add(t.Quantity)
		if !newQty.IsZero() {
			v.AveragePrice = v.AveragePrice.Mul(v.Quantity).Add(cost).Div(newQty)
		}
		v.Quantity = newQty
		v.CashBalance = v.CashBalance.Sub(cost)
	case TxSell:
		qty := t.AbsQuantity()
		v.Profit = v.Profit.Add(t.Price.Sub(v.AveragePrice).Mul(qty)).Sub(t.Fee)
		v.Quantity = v.Quantity.Sub(qty)
		v.CashBalance = v.CashBalance.Add(t.Price.Mul(qty)).Sub(t.Fee)
		v.SellCount++
	}
	v.TransactionCount++

	return v
}

// Reduce folds txs, which must already be in chronological order.
// Splits dated on or before a transaction's trade date are applied before it.
func Reduce(txs []Transaction, splits []StockSplit) Valuation {
	pending := make([]StockSplit, len(splits))
	copy(pending, splits)
	sortSplits(pending)

	var v Valuation
	for _, t := range txs {
		for len(pending) > 0 && !pending[0].Date.After(t.Date) {
			v = v.split(pending[0])
			pending = pending[1:]
		}
		v = Step(v, t)
	}
	for _, s := range pending {
		v = v.split(s)
	}

	return v
}

// Oversold folds txs in chronological order and returns the first sell that takes
// the running quantity below zero.
func Oversold(txs []Transaction, splits []StockSplit) (Transaction, bool) {
	pending := make([]StockSplit, len(splits))
	copy(pending, splits)
	sortSplits(pending)

	var v Valuation
	for _, t := range SortedCopy(txs) {
		for len(pending) > 0 && !pending[0].Date.After(t.Date) {
			v = v.split(pending[0])
			pending = pending[1:]
		}
		v = Step(v, t)
		if v.Quantity.IsNegative() {
			return t, true
		}
	}
	return Transaction{}, false
}

// ReduceSorted orders a copy of txs before folding.
func ReduceSorted(txs []Transaction, splits []StockSplit) Valuation {
	return Reduce(SortedCopy(txs), splits)
}

// Equal reports whether two valuations carry the same numbers.
func (v Valuation) Equal(o Valuation) bool {
	return v.AveragePrice.Equal(o.AveragePrice) &&
		v.Quantity.Equal(o.Quantity) &&
		v.Profit.Equal(o.Profit) &&
		v.CashBalance.Equal(o.CashBalance) &&
		v.TransactionCount == o.TransactionCount &&
		v.SellCount == o.SellCount
}
