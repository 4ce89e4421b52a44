package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StockSplit rescales held shares from Date on: quantity is multiplied by Ratio
// and the average price divided by it. A 1:10 reverse split has Ratio 0.1.
type StockSplit struct {
	Date  time.Time       `json:"date"`
	Ratio decimal.Decimal `json:"ratio"`
}

// NewStockSplit validates the ratio.
func NewStockSplit(ratio decimal.Decimal, date time.Time) (StockSplit, error) {
	if !ratio.IsPositive() {
		return StockSplit{}, invalidf("split ratio must be positive, got %s", ratio)
	}
	if ratio.Equal(decimal.NewFromInt(1)) {
		return StockSplit{}, invalidf("split ratio of 1 changes nothing")
	}
	if date.IsZero() {
		return StockSplit{}, invalidf("split date is required")
	}

	return StockSplit{Date: DateOf(date), Ratio: ratio}, nil
}

// AddSplit records a split and updates the cumulative ratio.
func (p *Position) AddSplit(s StockSplit) {
	p.Splits = append(p.Splits, s)
	sortSplits(p.Splits)
	if p.SplitRatio.IsZero() {
		p.SplitRatio = decimal.NewFromInt(1)
	}
	p.SplitRatio = p.SplitRatio.Mul(s.Ratio)
}

func sortSplits(splits []StockSplit) {
	sort.SliceStable(splits, func(i, j int) bool { return splits[i].Date.Before(splits[j].Date) })
}

func (v Valuation) split(s StockSplit) Valuation {
	v.Quantity = v.Quantity.Mul(s.Ratio)
	v.AveragePrice = v.AveragePrice.Div(s.Ratio)
	return v
}
