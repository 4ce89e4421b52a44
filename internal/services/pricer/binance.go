package pricer

import (
	"context"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/infbuy/internal/domain"
)

const (
	dailyInterval    = "1d"
	DefaultKlineDays = 365
)

// klineFetcher is the slice of the Binance client the provider needs.
type klineFetcher func(ctx context.Context, symbol, interval string, limit int) ([]*binance.Kline, error)

// BinanceProvider reads daily klines from the Binance public API.
type BinanceProvider struct {
	fetch klineFetcher
	limit int
	now   func() time.Time
}

// NewBinanceProvider creates a provider over client. Public market data needs no keys.
func NewBinanceProvider(client *binance.Client, days int) *BinanceProvider {
	return newBinanceProvider(func(ctx context.Context, symbol, interval string, limit int) ([]*binance.Kline, error) {
		return client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
	}, days)
}

func newBinanceProvider(fetch klineFetcher, days int) *BinanceProvider {
	if days <= 0 || days > 1000 {
		days = DefaultKlineDays
	}
	return &BinanceProvider{fetch: fetch, limit: days, now: time.Now}
}

// Name implements HistoryProvider.
func (p *BinanceProvider) Name() string {
	return "binance"
}

// DailyCloses implements HistoryProvider. The kline of the running day is left out.
func (p *BinanceProvider) DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error) {
	symbol := strings.ToUpper(ticker)
	klines, err := p.fetch(ctx, symbol, dailyInterval, p.limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", symbol)
	}

	nowMs := p.now().UnixMilli()
	out := make([]domain.DailyClose, 0, len(klines))
	for i, k := range klines {
		if k == nil || k.CloseTime > nowMs {
			continue
		}
		price, err := parseClose(k.Close, i)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.DailyClose{
			Date:  domain.DateOf(time.UnixMilli(k.OpenTime).UTC()),
			Price: price,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}
