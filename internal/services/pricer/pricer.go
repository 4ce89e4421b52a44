// Package pricer loads daily closing prices for tickers.
package pricer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
)

// ErrNoData is returned when a source has no closes for a ticker.
var ErrNoData = errors.New("no price data")

// HistoryProvider returns daily closes in ascending date order.
type HistoryProvider interface {
	DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error)
	Name() string
}

// PreviousClose is the last close of the series.
func PreviousClose(closes []domain.DailyClose) (decimal.Decimal, bool) {
	if len(closes) == 0 {
		return decimal.Zero, false
	}
	return closes[len(closes)-1].Price, true
}

// Router sends crypto pairs to the crypto source and everything else to the stock source.
type Router struct {
	stocks HistoryProvider
	crypto HistoryProvider
}

// NewRouter creates a Router. crypto may be nil.
func NewRouter(stocks, crypto HistoryProvider) *Router {
	return &Router{stocks: stocks, crypto: crypto}
}

var cryptoQuotes = []string{"USDT", "USDC", "FDUSD"}

// IsCryptoPair reports whether the ticker looks like an exchange pair such as BTCUSDT.
func IsCryptoPair(ticker string) bool {
	t := strings.ToUpper(ticker)
	for _, q := range cryptoQuotes {
		if len(t) > len(q) && strings.HasSuffix(t, q) {
			return true
		}
	}
	return false
}

// DailyCloses dispatches on the ticker.
func (r *Router) DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error) {
	if r.crypto != nil && IsCryptoPair(ticker) {
		return r.crypto.DailyCloses(ctx, ticker)
	}
	return r.stocks.DailyCloses(ctx, ticker)
}

// Name implements HistoryProvider.
func (r *Router) Name() string {
	return "auto"
}

func parseClose(raw string, i int) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse close price at index %d", i)
	}
	return v, nil
}
