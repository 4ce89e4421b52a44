package tracker

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"go.uber.org/zap"
)

// GuidanceReport is the next order ladder with the snapshot it was computed from.
type GuidanceReport struct {
	Snapshot      *Snapshot       `json:"snapshot"`
	Guidance      domain.Guidance `json:"guidance"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// Guidance recomputes the position and builds its buy and sell ladders. Without a
// previous close the big-drop rung is reported as insufficient.
func (t *Tracker) Guidance(ctx context.Context, id string) (*GuidanceReport, error) {
	snap, err := t.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	p := snap.Position

	report := &GuidanceReport{Snapshot: snap, Warnings: snap.Warnings}
	if prev, err := t.previousClose(ctx, p.BaseTicker()); err != nil {
		report.Warnings = append(report.Warnings, "previous close unavailable: "+err.Error())
		t.l.Warn("previous close unavailable",
			zap.String("position_id", id),
			zap.String("ticker", p.BaseTicker()),
			zap.Error(err))
	} else {
		report.PreviousClose = prev
	}

	report.Guidance = domain.CalculateGuidance(domain.GuidanceInput{
		Phase:            snap.Phase,
		SellsSinceEntry:  snap.SellsSinceEntry,
		Version:          p.Version,
		AveragePrice:     snap.Valuation.AveragePrice,
		TValue:           snap.TValue,
		DivisionCount:    p.DivisionCount,
		TargetProfitPct:  p.TargetProfitPct,
		PerTradeAmount:   p.PerTradeAmount,
		PreviousClose:    report.PreviousClose,
		Quantity:         snap.Valuation.Quantity,
		TransactionCount: snap.Valuation.TransactionCount,
	})

	return report, nil
}

func (t *Tracker) previousClose(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if t.prices == nil {
		return decimal.Zero, errNoPriceSource
	}
	closes, err := t.prices.DailyCloses(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	if len(closes) == 0 {
		return decimal.Zero, errNoCloses
	}
	return closes[len(closes)-1].Price, nil
}
