package indicators

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int, f func(i int) float64) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.NewFromFloat(f(i))
	}
	return out
}

func TestCalculateEMA_Constant(t *testing.T) {
	closes := series(30, func(int) float64 { return 42 })

	ema, err := CalculateEMA(closes, 20)
	require.NoError(t, err)
	require.NotEmpty(t, ema)
	assert.LessOrEqual(t, len(ema), len(closes))
	for _, v := range ema {
		assert.InDelta(t, 42.0, v.InexactFloat64(), 1e-9)
	}
}

func TestCalculateEMA_FollowsTrend(t *testing.T) {
	closes := series(40, func(i int) float64 { return float64(10 + i) })

	ema, err := CalculateEMA(closes, 20)
	require.NoError(t, err)
	last := ema[len(ema)-1].InexactFloat64()
	assert.Less(t, last, 49.0, "EMA lags a rising series")
	assert.Greater(t, last, 30.0)
}

func TestCalculateEMA_NotEnoughData(t *testing.T) {
	_, err := CalculateEMA(series(5, func(int) float64 { return 1 }), 20)
	require.Error(t, err)

	_, err = CalculateEMA(series(5, func(int) float64 { return 1 }), 0)
	require.Error(t, err)
}

func TestCalculateRSI_Bounds(t *testing.T) {
	closes := series(40, func(i int) float64 {
		if i%2 == 0 {
			return 100 + float64(i)
		}
		return 98 + float64(i)
	})

	rsi, err := CalculateRSI(closes, 14)
	require.NoError(t, err)
	require.NotEmpty(t, rsi)
	for _, v := range rsi {
		f := v.InexactFloat64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 100.0)
	}

	_, err = CalculateRSI(series(10, func(int) float64 { return 1 }), 14)
	require.Error(t, err)
}

func TestFloat64ToDecimals_NonFinite(t *testing.T) {
	out := float64ToDecimals([]float64{1.5, math.NaN(), math.Inf(1)})
	assert.Equal(t, "1.5", out[0].String())
	assert.True(t, out[1].IsZero())
	assert.True(t, out[2].IsZero())
}
