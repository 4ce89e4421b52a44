package pricer

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/infbuy/internal/domain"
)

// hlCandle is the part of a Hyperliquid candle the provider reads.
type hlCandle struct {
	openMs int64
	close  string
}

type candleFetcher func(ctx context.Context, coin, interval string, startMs, endMs int64) ([]hlCandle, error)

// HyperliquidProvider reads daily candles from the Hyperliquid public Info API.
// Pairs are looked up by base coin, so BTCUSDT reads the BTC candles.
type HyperliquidProvider struct {
	fetch candleFetcher
	days  int
	now   func() time.Time
}

// NewHyperliquidProvider creates a provider over info.
func NewHyperliquidProvider(info *hyperliquid.Info, days int) *HyperliquidProvider {
	return newHyperliquidProvider(func(ctx context.Context, coin, interval string, startMs, endMs int64) ([]hlCandle, error) {
		candles, err := info.CandlesSnapshot(ctx, coin, interval, startMs, endMs)
		if err != nil {
			return nil, err
		}
		out := make([]hlCandle, 0, len(candles))
		for _, c := range candles {
			out = append(out, hlCandle{openMs: c.TimeOpen, close: c.Close})
		}
		return out, nil
	}, days)
}

func newHyperliquidProvider(fetch candleFetcher, days int) *HyperliquidProvider {
	if days <= 0 || days > 5000 {
		days = DefaultKlineDays
	}
	return &HyperliquidProvider{fetch: fetch, days: days, now: time.Now}
}

// Name implements HistoryProvider.
func (p *HyperliquidProvider) Name() string {
	return "hyperliquid"
}

// DailyCloses implements HistoryProvider. The candle of the running day is left out.
func (p *HyperliquidProvider) DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error) {
	coin := baseCoin(ticker)
	now := p.now().UTC()
	endMs := now.UnixMilli()
	// two extra days cover the running candle and rounding at the window start
	startMs := now.AddDate(0, 0, -(p.days + 2)).UnixMilli()

	candles, err := p.fetch(ctx, coin, dailyInterval, startMs, endMs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch candles from Hyperliquid for %s", coin)
	}

	today := domain.DateOf(now)
	out := make([]domain.DailyClose, 0, len(candles))
	for i, c := range candles {
		date := domain.DateOf(time.UnixMilli(c.openMs).UTC())
		if !date.Before(today) {
			continue
		}
		price, err := parseClose(c.close, i)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.DailyClose{Date: date, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > p.days {
		out = out[len(out)-p.days:]
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// baseCoin strips a known quote currency: BTCUSDT becomes BTC.
func baseCoin(ticker string) string {
	t := strings.ToUpper(ticker)
	for _, q := range cryptoQuotes {
		if len(t) > len(q) && strings.HasSuffix(t, q) {
			return strings.TrimSuffix(t, q)
		}
	}
	return t
}
