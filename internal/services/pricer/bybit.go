package pricer

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/infbuy/internal/domain"
)

const bybitCategory = "spot"

// BybitProvider reads daily spot klines from Bybit.
type BybitProvider struct {
	client *bybit.Client
	limit  int
	now    func() time.Time
}

// NewBybitProvider creates a provider over an unauthenticated client.
func NewBybitProvider(client *bybit.Client, days int) *BybitProvider {
	if days <= 0 || days > 1000 {
		days = DefaultKlineDays
	}
	return &BybitProvider{client: client, limit: days, now: time.Now}
}

// Name implements HistoryProvider.
func (p *BybitProvider) Name() string {
	return "bybit"
}

// DailyCloses implements HistoryProvider.
func (p *BybitProvider) DailyCloses(_ context.Context, ticker string) ([]domain.DailyClose, error) {
	symbol := strings.ToUpper(ticker)
	limit := p.limit
	klines, err := p.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: bybitCategory,
		Symbol:   bybit.SymbolV5(symbol),
		Interval: bybit.IntervalD,
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get klines from Bybit for %s", symbol)
	}
	return convertBybitKlines(klines.Result.List, p.now())
}

// convertBybitKlines sorts ascending and drops the day still trading.
func convertBybitKlines(list bybit.V5GetKlineList, now time.Time) ([]domain.DailyClose, error) {
	today := domain.DateOf(now.UTC())
	out := make([]domain.DailyClose, 0, len(list))
	for i, k := range list {
		ms, err := strconv.ParseInt(k.StartTime, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse start time: %s", k.StartTime)
		}
		date := domain.DateOf(time.UnixMilli(ms).UTC())
		if !date.Before(today) {
			continue
		}
		price, err := parseClose(k.Close, i)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.DailyClose{Date: date, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}
