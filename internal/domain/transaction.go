package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the side of a fill.
type TxType string

const (
	TxBuy  TxType = "buy"
	TxSell TxType = "sell"
)

// MOCMarker in a sell memo flags a market-on-close fill.
const MOCMarker = "MOC"

// Transaction is a single buy or sell fill. Quantity is negative for sells.
type Transaction struct {
	ID         string          `json:"id"`
	PositionID string          `json:"position_id"`
	Type       TxType          `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	Date       time.Time       `json:"date"`
	CreatedAt  time.Time       `json:"created_at"`
	Memo       string          `json:"memo,omitempty"`
}

// NewTransaction validates a fill and stores sell quantities as negative magnitudes.
func NewTransaction(txType TxType, quantity, price, fee decimal.Decimal, date time.Time, memo string) (*Transaction, error) {
	if txType != TxBuy && txType != TxSell {
		return nil, invalidf("unknown transaction type %q", txType)
	}
	if !quantity.IsPositive() {
		return nil, invalidf("quantity must be positive, got %s", quantity)
	}
	if !price.IsPositive() {
		return nil, invalidf("price must be positive, got %s", price)
	}
	if fee.IsNegative() {
		return nil, invalidf("fee must be non-negative, got %s", fee)
	}
	if date.IsZero() {
		return nil, invalidf("trade date is required")
	}

	if txType == TxSell {
		quantity = quantity.Neg()
	}

	return &Transaction{
		Type:      txType,
		Quantity:  quantity,
		Price:     price,
		Fee:       fee,
		Date:      DateOf(date),
		CreatedAt: time.Now().UTC(),
		Memo:      strings.TrimSpace(memo),
	}, nil
}

// IsBuy reports whether t is a buy fill.
func (t Transaction) IsBuy() bool { return t.Type == TxBuy }

// IsSell reports whether t is a sell fill.
func (t Transaction) IsSell() bool { return t.Type == TxSell }

// IsMOC reports whether t is a sell tagged as market-on-close.
func (t Transaction) IsMOC() bool {
	return t.IsSell() && strings.Contains(strings.ToUpper(t.Memo), MOCMarker)
}

// AbsQuantity returns the unsigned share count.
func (t Transaction) AbsQuantity() decimal.Decimal {
	return t.Quantity.Abs()
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Less orders by trade date, then creation time, then id.
func (t Transaction) Less(o Transaction) bool {
	if !t.Date.Equal(o.Date) {
		return t.Date.Before(o.Date)
	}
	if !t.CreatedAt.Equal(o.CreatedAt) {
		return t.CreatedAt.Before(o.CreatedAt)
	}
	return t.ID < o.ID
}

// SortTransactions orders txs in place chronologically.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Less(txs[j]) })
}

// SortedCopy returns a chronologically ordered copy of txs.
func SortedCopy(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	SortTransactions(out)
	return out
}

// Deref flattens a slice of pointers, skipping nils.
func Deref(txs []*Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}
