package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guidanceInput(tValue string) GuidanceInput {
	return GuidanceInput{
		Phase:            PhaseNormal,
		Version:          Version22,
		AveragePrice:     dec("10"),
		TValue:           dec(tValue),
		DivisionCount:    20,
		TargetProfitPct:  dec("15"),
		PerTradeAmount:   dec("500"),
		PreviousClose:    dec("10"),
		Quantity:         dec("50"),
		TransactionCount: 3,
	}
}

func requireRung(t *testing.T, r Rung, kind RungKind, price, qty string) {
	t.Helper()
	require.Equal(t, kind, r.Kind)
	require.False(t, r.Insufficient, "%s rung flagged insufficient", kind)
	require.True(t, r.Price.Equal(dec(price)), "%s price: got %s want %s", kind, r.Price, price)
	require.True(t, r.Quantity.Equal(dec(qty)), "%s qty: got %s want %s", kind, r.Quantity, qty)
}

func TestPerStar(t *testing.T) {
	got, ok := PerStar(dec("15"), 20, dec("1"))
	require.True(t, ok)
	require.True(t, got.Equal(dec("13.5")))

	got, ok = PerStar(dec("15"), 20, dec("10"))
	require.True(t, ok)
	require.True(t, got.IsZero())

	_, ok = PerStar(dec("15"), 0, dec("1"))
	require.False(t, ok)
}

func TestCalculateGuidance_FirstHalf(t *testing.T) {
	g := CalculateGuidance(guidanceInput("1"))

	require.Equal(t, StageFirstHalf, g.Stage)
	require.True(t, g.PerStarDisplay.Equal(dec("13.5")))
	require.True(t, g.StarPrice.Equal(dec("11.34")))
	require.Len(t, g.Buy, 7)

	requireRung(t, g.Buy[0], RungAverage, "10", "28")
	requireRung(t, g.Buy[1], RungStarHalf, "11.34", "22")
	for i := 0; i < 4; i++ {
		r := g.Buy[2+i]
		require.Equal(t, RungDeeper, r.Kind)
		require.True(t, r.Quantity.Equal(dec("1")))
		require.True(t, r.Price.Equal(dec("500").Div(decimal.NewFromInt(int64(51+i)))), "deeper %d: %s", i, r.Price)
	}
	requireRung(t, g.Buy[6], RungBigDrop, "11.2", "22")

	require.Len(t, g.Sell, 2)
	requireRung(t, g.Sell[0], RungStarQuarter, "11.35", "12")
	assert.Equal(t, OrderLOC, g.Sell[0].OrderType)
	requireRung(t, g.Sell[1], RungTarget, "11.5", "38")
	assert.Equal(t, OrderLimit, g.Sell[1].OrderType)
}

func TestCalculateGuidance_SecondHalf(t *testing.T) {
	g := CalculateGuidance(guidanceInput("12"))

	require.Equal(t, StageSecondHalf, g.Stage)
	require.True(t, g.PerStar.Equal(dec("-3")))
	require.Len(t, g.Buy, 6)

	requireRung(t, g.Buy[0], RungStar, "9.69", "51")
	require.True(t, g.Buy[1].Price.Equal(dec("500").Div(dec("52"))))
	require.True(t, g.Buy[4].Price.Equal(dec("500").Div(dec("55"))))
	requireRung(t, g.Buy[5], RungBigDrop, "11.2", "44")

	requireRung(t, g.Sell[0], RungStarQuarter, "9.7", "12")
}

func TestCalculateGuidance_QuarterCut(t *testing.T) {
	in := guidanceInput("19.5")
	in.Phase = PhaseQuarterCut
	in.Quantity = dec("100")

	g := CalculateGuidance(in)
	require.Equal(t, StageQuarterCut, g.Stage)
	require.Empty(t, g.Buy)
	require.Len(t, g.Sell, 1)
	require.Equal(t, RungQuarterMOC, g.Sell[0].Kind)
	require.Equal(t, OrderMOC, g.Sell[0].OrderType)
	require.True(t, g.Sell[0].Quantity.Equal(dec("25")))

	in.SellsSinceEntry = 1
	g = CalculateGuidance(in)
	require.Len(t, g.Sell, 2)
	requireRung(t, g.Sell[0], RungQuarterStop, "8.5", "25")
	requireRung(t, g.Sell[1], RungTarget, "11.5", "75")
}

func TestCalculateGuidance_EmptyLog(t *testing.T) {
	in := guidanceInput("0")
	in.TransactionCount = 0

	g := CalculateGuidance(in)
	require.Equal(t, StageEmpty, g.Stage)
	require.Empty(t, g.Buy)
	require.Empty(t, g.Sell)
}

func TestCalculateGuidance_GuardsDegenerateDivisors(t *testing.T) {
	t.Run("no tranche", func(t *testing.T) {
		in := guidanceInput("1")
		in.PerTradeAmount = dec("0")
		for _, r := range CalculateGuidance(in).Buy {
			require.True(t, r.Insufficient, "%s", r.Kind)
			require.True(t, r.Price.IsZero())
			require.True(t, r.Quantity.IsZero())
		}
	})

	t.Run("no previous close", func(t *testing.T) {
		in := guidanceInput("1")
		in.PreviousClose = dec("0")
		g := CalculateGuidance(in)
		require.True(t, g.Buy[len(g.Buy)-1].Insufficient)
		require.False(t, g.Buy[0].Insufficient)
	})

	t.Run("star price below zero", func(t *testing.T) {
		in := guidanceInput("1")
		in.AveragePrice = dec("0.005")
		g := CalculateGuidance(in)
		require.True(t, g.Buy[1].Insufficient)
	})

	t.Run("zero divisions", func(t *testing.T) {
		in := guidanceInput("1")
		in.DivisionCount = 0
		g := CalculateGuidance(in)
		require.Len(t, g.Buy, 1)
		require.True(t, g.Buy[0].Insufficient)
	})

	t.Run("too few shares to quarter", func(t *testing.T) {
		in := guidanceInput("1")
		in.Quantity = dec("3")
		g := CalculateGuidance(in)
		require.True(t, g.Sell[0].Insufficient)
		requireRung(t, g.Sell[1], RungTarget, "11.5", "3")
	})
}
