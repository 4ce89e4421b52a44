// Package chart assembles the data behind the price-versus-average-cost chart of a position.
package chart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/pkg/indicators"
	"go.uber.org/zap"
)

const (
	emaFastPeriod = 20
	emaSlowPeriod = 50
	rsiPeriod     = 14
)

type priceHistory interface {
	DailyCloses(ctx context.Context, ticker string) ([]domain.DailyClose, error)
}

// Point is one dated indicator value.
type Point struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Chart is the plotted data of one position. Indicator series are omitted when
// the window is shorter than their period.
type Chart struct {
	Ticker   string                `json:"ticker"`
	Start    time.Time             `json:"start"`
	End      time.Time             `json:"end"`
	Closes   []domain.DailyClose   `json:"closes"`
	Average  []domain.AveragePoint `json:"average"`
	Sells    []domain.SellMarker   `json:"sells"`
	EMA20    []Point               `json:"ema20,omitempty"`
	EMA50    []Point               `json:"ema50,omitempty"`
	RSI14    []Point               `json:"rsi14,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
}

// Builder fetches closes and lays the position history over them.
type Builder struct {
	prices priceHistory
	l      *zap.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(l *zap.Logger, prices priceHistory) *Builder {
	return &Builder{prices: prices, l: l, now: time.Now}
}

// Window is the day before the first transaction through today, or through the
// last sell once the position is settled.
func Window(p *domain.Position, txs []domain.Transaction, now time.Time) (time.Time, time.Time, bool) {
	if len(txs) == 0 {
		return time.Time{}, time.Time{}, false
	}
	sorted := domain.SortedCopy(txs)
	start := sorted[0].Date.AddDate(0, 0, -1)
	end := domain.DateOf(now.UTC())

	if p.Settled {
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].IsSell() {
				end = sorted[i].Date
				break
			}
		}
	}
	if end.Before(start) {
		end = start
	}
	return start, end, true
}

// Build returns the chart of p. A price source failure still yields the average
// line and sell markers, with a warning.
func (b *Builder) Build(ctx context.Context, p *domain.Position, txs []domain.Transaction) (*Chart, error) {
	c := &Chart{
		Ticker:  p.BaseTicker(),
		Closes:  []domain.DailyClose{},
		Average: []domain.AveragePoint{},
		Sells:   domain.SellMarkers(txs),
	}

	start, end, ok := Window(p, txs, b.now())
	if !ok {
		return c, nil
	}
	c.Start, c.End = start, end
	c.Average = domain.AverageCostSeries(txs, p.Splits, start, end)

	if b.prices == nil {
		c.Warnings = append(c.Warnings, "no price source configured")
		return c, nil
	}
	closes, err := b.prices.DailyCloses(ctx, c.Ticker)
	if err != nil {
		b.l.Warn("chart without closes", zap.String("ticker", c.Ticker), zap.Error(err))
		c.Warnings = append(c.Warnings, "price history unavailable: "+err.Error())
		return c, nil
	}
	c.Closes = clip(closes, start, end)

	values := make([]decimal.Decimal, len(c.Closes))
	for i, dc := range c.Closes {
		values[i] = dc.Price
	}
	if ema, err := indicators.CalculateEMA(values, emaFastPeriod); err == nil {
		c.EMA20 = align(c.Closes, ema)
	}
	if ema, err := indicators.CalculateEMA(values, emaSlowPeriod); err == nil {
		c.EMA50 = align(c.Closes, ema)
	}
	if rsi, err := indicators.CalculateRSI(values, rsiPeriod); err == nil {
		c.RSI14 = align(c.Closes, rsi)
	}

	return c, nil
}

func clip(closes []domain.DailyClose, start, end time.Time) []domain.DailyClose {
	out := make([]domain.DailyClose, 0, len(closes))
	for _, c := range closes {
		if c.Date.Before(start) || c.Date.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// align dates an indicator output against the tail of the closes it came from.
func align(closes []domain.DailyClose, values []decimal.Decimal) []Point {
	if len(values) > len(closes) {
		values = values[len(values)-len(closes):]
	}
	offset := len(closes) - len(values)
	out := make([]Point, len(values))
	for i, v := range values {
		out[i] = Point{Date: closes[offset+i].Date, Value: v}
	}
	return out
}
