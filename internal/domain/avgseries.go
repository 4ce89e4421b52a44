package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyClose is one closing price of a ticker.
type DailyClose struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// AveragePoint is the average cost at the end of a day. Average is nil while nothing is held.
type AveragePoint struct {
	Date    time.Time        `json:"date"`
	Average *decimal.Decimal `json:"average"`
}

// SellMarker marks a sell on the price chart.
type SellMarker struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// AverageCostSeries returns one point per calendar day in [start, end]. Days without
// transactions carry the previous average forward.
func AverageCostSeries(txs []Transaction, splits []StockSplit, start, end time.Time) []AveragePoint {
	start, end = DateOf(start), DateOf(end)
	if end.Before(start) {
		return nil
	}

	sorted := SortedCopy(txs)
	pending := make([]StockSplit, len(splits))
	copy(pending, splits)
	sortSplits(pending)

	var (
		v      Valuation
		i      int
		points []AveragePoint
	)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for {
			splitDue := len(pending) > 0 && !pending[0].Date.After(day)
			txDue := i < len(sorted) && !sorted[i].Date.After(day)
			if splitDue && (!txDue || !pending[0].Date.After(sorted[i].Date)) {
				v = v.split(pending[0])
				pending = pending[1:]
				continue
			}
			if !txDue {
				break
			}
			v = Step(v, sorted[i])
			i++
		}

		p := AveragePoint{Date: day}
		if v.Quantity.IsPositive() {
			avg := v.AveragePrice
			p.Average = &avg
		}
		points = append(points, p)
	}

	return points
}

// SellMarkers lists every sell in chronological order.
func SellMarkers(txs []Transaction) []SellMarker {
	markers := make([]SellMarker, 0)
	for _, t := range SortedCopy(txs) {
		if t.IsSell() {
			markers = append(markers, SellMarker{Date: t.Date, Price: t.Price})
		}
	}
	return markers
}
